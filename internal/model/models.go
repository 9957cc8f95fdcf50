// Package model defines domain structs shared across the persistence layer.
package model

import "fmt"

const (
	// ClientEventMethod is the reserved request_method value for whistles
	// reported by client-side script instead of normal request handling.
	ClientEventMethod = "CLIENT"

	// PingSignal is the client-emitted liveness event. Clients that execute
	// JavaScript send it; most bots never do.
	PingSignal = "PING"

	// ViewportCookieName is the cookie the client script populates with the
	// browser viewport dimensions (e.g. "1920x1080").
	ViewportCookieName = "viewport_dimensions"
)

// Whistle is one logged request, response, or client-reported event.
// Records are immutable once written; the only later mutation is the
// subject rewrite performed by the identity migration hook.
type Whistle struct {
	ID                 int64  `json:"id"`
	SubjectID          string `json:"subject_id"`
	RequestSummary     string `json:"request_summary"`
	ResponseSummary    string `json:"response_summary"`
	RequestMethod      string `json:"request_method"`
	RequestPath        string `json:"request_path"`
	ResponseCode       int    `json:"response_code"`
	UserAgent          string `json:"user_agent"`
	IsAuthenticated    bool   `json:"is_authenticated"`
	ViewportDimensions string `json:"viewport_dimensions"`
	TsNs               int64  `json:"ts_ns"`
}

// Validate reports whether the whistle is persistable.
func (w *Whistle) Validate() error {
	if w.SubjectID == "" {
		return fmt.Errorf("subject_id: must not be empty")
	}
	if w.RequestMethod == "" {
		return fmt.Errorf("request_method: must not be empty")
	}
	if w.ResponseCode < 100 || w.ResponseCode > 599 {
		return fmt.Errorf("response_code: must be in [100,599], got %d", w.ResponseCode)
	}
	if w.TsNs <= 0 {
		return fmt.Errorf("ts_ns: must be positive, got %d", w.TsNs)
	}
	return nil
}
