package model

import "time"

// SaleType classifies the funding event a lead was discovered for.
type SaleType string

const (
	SaleTypeICO     SaleType = "ico"
	SaleTypeIDO     SaleType = "ido"
	SaleTypeIEO     SaleType = "ieo"
	SaleTypePresale SaleType = "presale"
	SaleTypeSeed    SaleType = "seed"
	SaleTypeUnknown SaleType = "unknown"
)

// LeadRecord is one harvested token-sale / funding-event listing.
// Created during discovery, filled in during the detail pass, and augmented
// (never replaced) by enrichment.
type LeadRecord struct {
	Name       string            `json:"name"`
	Website    string            `json:"website,omitempty"`
	Domain     string            `json:"domain,omitempty"` // canonical form of Website
	Category   string            `json:"category,omitempty"`
	LaunchDate string            `json:"launch_date,omitempty"`
	Raised     string            `json:"raised,omitempty"`
	SaleType   SaleType          `json:"sale_type,omitempty"`
	Source     string            `json:"source"`
	DetailsURL string            `json:"details_url"`
	Socials    map[string]string `json:"socials,omitempty"` // platform -> raw URL
}

// HasSocial reports whether the record carries at least one raw social URL.
func (r *LeadRecord) HasSocial() bool {
	return len(r.Socials) > 0
}

// ScrapeStats counts the outcome of one orchestrator run. Counters only
// increase within a run.
type ScrapeStats struct {
	Source    string        `json:"source"`
	Found     int           `json:"found"`
	Processed int           `json:"processed"`
	Filtered  int           `json:"filtered"`
	Errors    int           `json:"errors"`
	Elapsed   time.Duration `json:"elapsed"`
}

// SocialHandle is a normalized social link.
type SocialHandle struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	URL      string `json:"url"`
}

// TeamProfile is an individual LinkedIn profile discovered on a lead's site.
type TeamProfile struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url"`
}

// Contact is a recovered contact with one or more email addresses.
type Contact struct {
	Name     string   `json:"name,omitempty"`
	Emails   []string `json:"emails"`
	Strategy string   `json:"strategy"`
}

// EnrichmentResult pairs a lead with everything the enrichment chain
// recovered for it. Strategies lists only those that contributed, in the
// order they ran.
type EnrichmentResult struct {
	Lead       LeadRecord     `json:"lead"`
	Handles    []SocialHandle `json:"handles,omitempty"`
	Team       []TeamProfile  `json:"team,omitempty"`
	Contacts   []Contact      `json:"contacts,omitempty"`
	Strategies []string       `json:"strategies,omitempty"`
	Attempts   int            `json:"attempts"`
	Elapsed    time.Duration  `json:"elapsed"`
}

// HarvestRunStatus represents the state of a stored harvest run.
type HarvestRunStatus string

const (
	HarvestRunStatusRunning  HarvestRunStatus = "running"
	HarvestRunStatusComplete HarvestRunStatus = "complete"
	HarvestRunStatusFailed   HarvestRunStatus = "failed"
)

// HarvestRun is one persisted invocation of the harvest pipeline.
type HarvestRun struct {
	ID        string           `json:"id"`
	Status    HarvestRunStatus `json:"status"`
	Sources   []string         `json:"sources"`
	Stats     []ScrapeStats    `json:"stats,omitempty"`
	Leads     int              `json:"leads"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
