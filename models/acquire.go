package models

// AcquireRequest is the payload for POST /api/v1/acquire.
type AcquireRequest struct {
	// URL is the document to acquire. Required.
	URL string `json:"url" binding:"required,url"`

	// Gate names the validation gate a result must pass.
	// Allowed: any, sitemap, robots, json, llms, html, article. Default: "html".
	Gate string `json:"gate,omitempty"`

	// PerStrategyTimeoutMs bounds each strategy. Default: server setting.
	PerStrategyTimeoutMs int `json:"per_strategy_timeout_ms,omitempty" binding:"omitempty,min=1"`

	// OverallTimeoutMs bounds the whole race. Default: server setting.
	OverallTimeoutMs int `json:"overall_timeout_ms,omitempty" binding:"omitempty,min=1"`

	// OutputFormat controls the response body format.
	// "raw" (default) returns the winning text as acquired.
	// "markdown" converts HTML documents to markdown.
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=raw markdown"`

	// ExtractMode controls main-content extraction for HTML documents.
	// "raw" (default) keeps the whole document; "readability" keeps the article body.
	ExtractMode string `json:"extract_mode,omitempty" binding:"omitempty,oneof=raw readability"`

	// CSSSelector optionally narrows an HTML document before formatting.
	CSSSelector string `json:"css_selector,omitempty"`

	// WebhookURL receives an acquire.completed or acquire.failed event.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook payload (HMAC-SHA256).
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *AcquireRequest) Defaults() {
	if r.Gate == "" {
		r.Gate = "html"
	}
	if r.OutputFormat == "" {
		r.OutputFormat = "raw"
	}
	if r.ExtractMode == "" {
		r.ExtractMode = "raw"
	}
}

// AcquireResponse is the response for POST /api/v1/acquire.
type AcquireResponse struct {
	// Success indicates whether some strategy produced a valid document.
	Success bool `json:"success"`

	// Strategy names the winning strategy.
	Strategy string `json:"strategy,omitempty"`

	// Content is the document in the requested format.
	Content string `json:"content,omitempty"`

	// Bytes is the size of the winning text before formatting.
	Bytes int `json:"bytes"`

	// Attempts lists the outcome of every strategy that settled.
	Attempts []Attempt `json:"attempts"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// Attempt is one strategy's outcome within a race.
type Attempt struct {
	Strategy  string `json:"strategy"`
	Outcome   string `json:"outcome"` // valid, invalid, failed, cancelled, pending
	Reason    string `json:"reason,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// RaceMs is the time spent racing strategies.
	RaceMs int64 `json:"race_ms"`

	// CleaningMs is the time spent extracting and formatting content.
	CleaningMs int64 `json:"cleaning_ms"`
}
