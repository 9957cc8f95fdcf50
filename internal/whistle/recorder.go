package whistle

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/silent-mammoth/whistle/internal/model"
)

// Inserter persists whistle records.
type Inserter interface {
	Insert(model.Whistle) error
}

// RecorderConfig carries the autolog toggles. The gated values are always
// stored when a write happens; the toggles decide whether a write is
// justified at all when the application added no notes.
type RecorderConfig struct {
	AutologRequestMethod bool
	AutologRequestPath   bool
	AutologResponseCode  bool
}

// Recorder builds and persists one whistle per qualifying request.
type Recorder struct {
	repo     Inserter
	resolver *Resolver
	cfg      RecorderConfig
}

// NewRecorder creates a Recorder.
func NewRecorder(repo Inserter, resolver *Resolver, cfg RecorderConfig) *Recorder {
	return &Recorder{repo: repo, resolver: resolver, cfg: cfg}
}

// Resolve exposes subject resolution so the interception layer can establish
// the session token before any response bytes are written.
func (rec *Recorder) Resolve(w http.ResponseWriter, r *http.Request) (Subject, error) {
	return rec.resolver.Resolve(w, r)
}

// ResolveAuthenticated resolves the subject without minting anonymous tokens.
func (rec *Recorder) ResolveAuthenticated(r *http.Request) (Subject, bool, error) {
	return rec.resolver.ResolveAuthenticated(r)
}

// Record writes one whistle for the request unless the subject is staff or no
// signal justifies a write. A validation failure is logged and dropped;
// failures never propagate to the response.
func (rec *Recorder) Record(subject Subject, r *http.Request, notes *Notes, responseCode int, clientEvent bool) error {
	if subject.Staff {
		return nil
	}
	if !rec.cfg.AutologRequestMethod && !rec.cfg.AutologRequestPath && !rec.cfg.AutologResponseCode && notes.Empty() {
		return nil
	}

	method := r.Method
	path := r.URL.Path
	if clientEvent {
		method = model.ClientEventMethod
		path = ""
	}
	viewport := ""
	if c, err := r.Cookie(model.ViewportCookieName); err == nil {
		viewport = c.Value
	}

	w := model.Whistle{
		SubjectID:          subject.ID,
		RequestSummary:     notes.RequestSummary(),
		ResponseSummary:    notes.ResponseSummary(),
		RequestMethod:      method,
		RequestPath:        path,
		ResponseCode:       responseCode,
		UserAgent:          r.UserAgent(),
		IsAuthenticated:    subject.Authenticated,
		ViewportDimensions: viewport,
		TsNs:               time.Now().UTC().UnixNano(),
	}
	if err := w.Validate(); err != nil {
		log.Printf("[whistle] warning: dropping invalid whistle for subject=%q: %v", subject.ID, err)
		return nil
	}
	if err := rec.repo.Insert(w); err != nil {
		return fmt.Errorf("record whistle: %w", err)
	}
	return nil
}
