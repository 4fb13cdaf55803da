// Package contactly provides a client for the Contactly people-search API,
// used to resolve a person's name into verified contact emails. The API is
// rate limited and treated as soft-failing by callers.
package contactly

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Contactly operations.
type Client interface {
	// FindPersonByName looks up a person and returns their known emails.
	// A nil Person (with nil error) means the person is unknown.
	FindPersonByName(ctx context.Context, first, last string) (*Person, error)
}

// Person is a resolved person record.
type Person struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Emails    []Email `json:"emails"`
}

// Email is one address with the provider's confidence score.
type Email struct {
	Address    string `json:"address"`
	Type       string `json:"type,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Contactly client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.contactly.io/v1",
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FindPersonByName(ctx context.Context, first, last string) (*Person, error) {
	q := url.Values{}
	q.Set("first_name", first)
	q.Set("last_name", last)

	endpoint := fmt.Sprintf("%s/people/search?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "contactly: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "contactly: search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, eris.Errorf("contactly: search returned %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Person *Person `json:"person"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "contactly: decode response")
	}
	if out.Person == nil || len(out.Person.Emails) == 0 {
		return nil, nil
	}
	return out.Person, nil
}
