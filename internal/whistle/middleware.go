package whistle

import (
	"log"
	"net/http"

	"github.com/silent-mammoth/whistle/internal/model"
)

// MiddlewareConfig configures the interception layer.
type MiddlewareConfig struct {
	// ClientEventPath is the reserved path for browser-side events. Requests
	// to it are answered directly with 204 and never reach the application.
	ClientEventPath string
	// UseCookies enables the session and viewport cookies.
	UseCookies bool
}

// Middleware intercepts every request: it threads a Notes accumulator through
// the request context, establishes the session token before the response is
// written, and records one whistle after the response completes. Recording
// failures are logged and never change the response.
type Middleware struct {
	cfg  MiddlewareConfig
	rec  *Recorder
	next http.Handler
}

// NewMiddleware wraps next with the interception layer.
func NewMiddleware(cfg MiddlewareConfig, rec *Recorder, next http.Handler) *Middleware {
	if cfg.ClientEventPath == "" {
		cfg.ClientEventPath = "/whistle"
	}
	return &Middleware{cfg: cfg, rec: rec, next: next}
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		m.next.ServeHTTP(w, r)
		return
	}

	notes := &Notes{}
	r = r.WithContext(NewContext(r.Context(), notes))

	// Cookies must be set before any response bytes, so the subject is
	// resolved up front. If resolution fails the request is still served,
	// just not recorded. With cookies disabled anonymous requests have no
	// stable subject and are skipped.
	var (
		subject  Subject
		resolved bool
	)
	if m.cfg.UseCookies {
		s, err := m.rec.Resolve(w, r)
		if err != nil {
			log.Printf("[whistle] warning: resolving subject: %v", err)
		} else {
			subject, resolved = s, true
		}
	} else {
		s, ok, err := m.rec.ResolveAuthenticated(r)
		switch {
		case err != nil:
			log.Printf("[whistle] warning: resolving subject: %v", err)
		case ok:
			subject, resolved = s, true
		}
	}

	if r.URL.Path == m.cfg.ClientEventPath {
		notes.AddRequest(r.PostFormValue("args"))
		w.WriteHeader(http.StatusNoContent)
		if resolved {
			if err := m.rec.Record(subject, r, notes, http.StatusNoContent, true); err != nil {
				log.Printf("[whistle] warning: recording client event: %v", err)
			}
		}
		return
	}

	if m.cfg.UseCookies {
		if _, err := r.Cookie(model.ViewportCookieName); err != nil {
			// Placeholder for the browser script to fill in.
			http.SetCookie(w, &http.Cookie{
				Name:     model.ViewportCookieName,
				Value:    "",
				Path:     "/",
				SameSite: http.SameSiteStrictMode,
			})
		}
	}

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	m.next.ServeHTTP(sw, r)

	// The handler may have authenticated the request (login), so check again
	// and attribute the record to the user rather than the pre-login subject.
	if s, ok, err := m.rec.ResolveAuthenticated(r); err == nil && ok {
		subject, resolved = s, true
	}

	if resolved {
		if err := m.rec.Record(subject, r, notes, sw.status, false); err != nil {
			log.Printf("[whistle] warning: recording request: %v", err)
		}
	}
}

// statusWriter captures the response status code for the recorder.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
