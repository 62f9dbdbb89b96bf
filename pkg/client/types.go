package client

import (
	"fmt"
	"time"
)

// PendingItem is one pending record as reported by the daemon.
type PendingItem struct {
	Ref       string `json:"ref"`
	Key       string `json:"key"`
	Content   string `json:"content"`
	Platform  string `json:"platform"`
	Scheduled string `json:"scheduled"`
}

// PendingResponse is the /pending snapshot document.
type PendingResponse struct {
	Gen        uint64        `json:"gen"`
	Taken      time.Time     `json:"taken"`
	Pending    []PendingItem `json:"pending"`
	Duplicates int           `json:"duplicates"`
	Prompted   int           `json:"prompted"`
}

// DecideRequest submits a verdict for a surrogate ref.
type DecideRequest struct {
	Ref     string `json:"ref"`
	Verdict string `json:"verdict"`
}

// DecideResponse reports an applied decision.
type DecideResponse struct {
	Ref      string `json:"ref"`
	Key      string `json:"key"`
	Verdict  string `json:"verdict"`
	Platform string `json:"platform"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is a non-2xx daemon response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}
