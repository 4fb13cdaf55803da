// Package browser runs proxied headless-Chrome sessions via chromedp. One
// Session owns one browser process bound to one proxy lease; it lives for
// one orchestrator run or one enrichment strategy and must always be
// closed by the caller.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/harvest-cli/internal/proxy"
)

const (
	defaultNavTimeout  = 30 * time.Second
	defaultWaitTimeout = 15 * time.Second
)

// Options configures a Session.
type Options struct {
	// Endpoint is the proxy lease the whole session is bound to. Zero value
	// means a direct connection (tests, local runs).
	Endpoint proxy.Endpoint

	// NavTimeout bounds each Navigate call. Default 30s.
	NavTimeout time.Duration

	// WaitTimeout bounds each WaitVisible call. Default 15s.
	WaitTimeout time.Duration
}

// Session is one live browser tab. Safe for sequential use only; the
// scrape layers never share a session across goroutines.
type Session struct {
	tabCtx      context.Context
	cancels     []context.CancelFunc
	navTimeout  time.Duration
	waitTimeout time.Duration
	currentURL  string
}

// NewSession launches a browser bound to the given proxy endpoint and
// returns a ready tab. A launch failure here is run-fatal for the caller.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}

	proxyURL := ""
	if opts.Endpoint.Host != "" {
		proxyURL = opts.Endpoint.URL()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execAllocatorOptions(proxyURL)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		tabCtx:      tabCtx,
		cancels:     []context.CancelFunc{tabCancel, allocCancel},
		navTimeout:  opts.NavTimeout,
		waitTimeout: opts.WaitTimeout,
	}

	// Proxy auth happens through the fetch domain: Chrome pauses the
	// request, we answer the challenge with the lease credentials.
	if proxyURL != "" && opts.Endpoint.Username != "" {
		chromedp.ListenTarget(tabCtx, func(ev any) {
			switch e := ev.(type) {
			case *fetch.EventAuthRequired:
				go func() {
					err := chromedp.Run(tabCtx, fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
						Response: fetch.AuthChallengeResponseResponseProvideCredentials,
						Username: opts.Endpoint.Username,
						Password: opts.Endpoint.Password,
					}))
					if err != nil {
						zap.L().Debug("browser: proxy auth continue failed", zap.Error(err))
					}
				}()
			case *fetch.EventRequestPaused:
				go func() {
					_ = chromedp.Run(tabCtx, fetch.ContinueRequest(e.RequestID))
				}()
			}
		})
	}

	boot := chromedp.Tasks{
		network.SetBlockedURLs(blockedResourcePatterns),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if proxyURL != "" && opts.Endpoint.Username != "" {
		boot = append(chromedp.Tasks{fetch.Enable().WithHandleAuthRequests(true)}, boot...)
	}

	if err := chromedp.Run(tabCtx, boot); err != nil {
		s.Close()
		return nil, eris.Wrap(err, "browser: launch session")
	}

	zap.L().Debug("browser: session started",
		zap.String("proxy", proxyURL),
	)
	return s, nil
}

// Navigate loads a URL and waits for the document body. It fails with a
// catchable error on timeout; the session stays usable afterwards.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := s.opCtx(ctx, s.navTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	s.currentURL = url
	return nil
}

// WaitVisible blocks until the selector appears or the wait timeout fires.
func (s *Session) WaitVisible(ctx context.Context, sel string) error {
	waitCtx, cancel := s.opCtx(ctx, s.waitTimeout)
	defer cancel()

	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "browser: wait for %q", sel)
	}
	return nil
}

// HTML captures the current document's outer HTML.
func (s *Session) HTML(ctx context.Context) (string, error) {
	htmlCtx, cancel := s.opCtx(ctx, s.waitTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(htmlCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "browser: capture html")
	}
	return html, nil
}

// URL returns the last successfully navigated URL.
func (s *Session) URL() string {
	return s.currentURL
}

// Close tears down the tab and the browser process. Idempotent.
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

// opCtx derives a timeout-bounded context from the tab context. chromedp
// needs its own context chain, so the caller's cancellation is propagated
// with AfterFunc instead of normal parenting.
func (s *Session) opCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	if ctx == nil {
		return opCtx, cancel
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}
