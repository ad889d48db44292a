package domain

import (
	"context"
	"time"
)

// SourceCategory classifies an inbound URL by host.
type SourceCategory string

const (
	CategoryLongForm  SourceCategory = "long-form"
	CategoryShortForm SourceCategory = "short-form"
	CategoryOther     SourceCategory = "other"
)

// ExtractionOptions configures one extraction call.
type ExtractionOptions struct {
	OutputTemplate string
	Format         string
	CookiesFile    string
	Proxy          string
	// ExtractorArgs maps extractor name to key/values, e.g.
	// "youtube" -> {"player_client": ["android", "web"]}.
	ExtractorArgs map[string]map[string][]string
	Impersonate   string
}

// RequestedDownload is one entry of the extraction result's download list.
type RequestedDownload struct {
	Filepath string `json:"filepath"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Ext      string `json:"ext"`
}

// ExtractResult is the subset of the extractor's info dict the bot needs.
type ExtractResult struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Ext                string              `json:"ext"`
	WebpageURL         string              `json:"webpage_url"`
	Extractor          string              `json:"extractor_key"`
	Duration           float64             `json:"duration"`
	Filesize           int64               `json:"filesize"`
	FilesizeApprox     float64             `json:"filesize_approx"` // reported as a float by some extractors
	RequestedDownloads []RequestedDownload `json:"requested_downloads"`
	Filename           string              `json:"_filename"`
}

// Extractor fetches the media behind a URL to local storage.
// Implementations block until the download finishes.
type Extractor interface {
	Extract(ctx context.Context, url string, opts ExtractionOptions) (*ExtractResult, error)
}

// Outcome is the terminal state of one handled message.
type Outcome string

const (
	OutcomeNotRequest  Outcome = "not-a-request"
	OutcomeDelivered   Outcome = "delivered"
	OutcomeFetchFailed Outcome = "fetch-failed"
	OutcomeNoFile      Outcome = "no-file"
	OutcomeSendFailed  Outcome = "send-failed"
	OutcomeRateLimited Outcome = "rate-limited"
)

// ExtractionReport summarizes one extraction call for metrics.
type ExtractionReport struct {
	Category SourceCategory
	Duration time.Duration
	OK       bool
}
