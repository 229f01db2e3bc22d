package server

import (
	"github.com/rezonia/fiscal-xml/internal/model"
)

// ProcessResponse is the response for the document endpoints
type ProcessResponse struct {
	Document   *model.Document `json:"document"`
	UpdatedXML string          `json:"updated_xml"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// ValidationResponse is the response for the validate endpoint
type ValidationResponse struct {
	Valid        bool           `json:"valid"`
	DocumentType string         `json:"document_type,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	Summary      *model.Summary `json:"summary,omitempty"`
}

// ReadResponse is the response for the read endpoint
type ReadResponse struct {
	Success          bool            `json:"success"`
	Document         *model.Document `json:"document,omitempty"`
	ProcessingTimeMS float64         `json:"processing_time_ms"`
	Errors           []string        `json:"errors,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// BatchSummaryResponse is the response for the batch-summary endpoint
type BatchSummaryResponse struct {
	TotalFiles int                  `json:"total_files"`
	Successful int                  `json:"successful"`
	Failed     int                  `json:"failed"`
	Results    []BatchSummaryResult `json:"results"`
}

// BatchSummaryResult is the outcome for one uploaded file
type BatchSummaryResult struct {
	FileName string         `json:"filename"`
	Success  bool           `json:"success"`
	Summary  *model.Summary `json:"summary,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// ReadyResponse is the response for the readiness probe
type ReadyResponse struct {
	Status string            `json:"status"`
	Time   string            `json:"time"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ErrorResponse is the standard error response
type ErrorResponse struct {
	Error    string   `json:"error"`
	Type     string   `json:"type,omitempty"`
	Details  string   `json:"details,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
