package whistle

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/silent-mammoth/whistle/internal/model"
)

type captureInserter struct {
	whistles []model.Whistle
	err      error
}

func (c *captureInserter) Insert(w model.Whistle) error {
	if c.err != nil {
		return c.err
	}
	c.whistles = append(c.whistles, w)
	return nil
}

type stubInfo struct {
	staff bool
	attrs map[string]string
}

func (s stubInfo) IsStaff() bool { return s.staff }

func (s stubInfo) Attribute(name string) (string, bool) {
	v, ok := s.attrs[name]
	return v, ok
}

type stubIdentity struct {
	info Info
}

func (s stubIdentity) Lookup(*http.Request) (Info, bool) {
	if s.info == nil {
		return nil, false
	}
	return s.info, true
}

// mutableIdentity lets a handler flip the request to authenticated mid-flight,
// the way a login view does.
type mutableIdentity struct {
	info Info
}

func (m *mutableIdentity) Lookup(*http.Request) (Info, bool) {
	if m.info == nil {
		return nil, false
	}
	return m.info, true
}

type stubTokens struct {
	token string
	err   error
	mints int
}

func (s *stubTokens) Token(http.ResponseWriter, *http.Request) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mints++
	return s.token, nil
}

func newTestMiddleware(t *testing.T, ins Inserter, identity Identity, cfg RecorderConfig, mw MiddlewareConfig, next http.Handler) *Middleware {
	t.Helper()
	if next == nil {
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "ok")
		})
	}
	resolver := NewResolver(identity, &stubTokens{token: "anon-token"}, "id")
	rec := NewRecorder(ins, resolver, cfg)
	return NewMiddleware(mw, rec, next)
}

func allAutolog() RecorderConfig {
	return RecorderConfig{AutologRequestMethod: true, AutologRequestPath: true, AutologResponseCode: true}
}

func TestMiddleware_HeadRequestsNotRecorded(t *testing.T) {
	ins := &captureInserter{}
	m := newTestMiddleware(t, ins, stubIdentity{}, allAutolog(), MiddlewareConfig{UseCookies: true}, nil)

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/page", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if len(ins.whistles) != 0 {
		t.Fatalf("HEAD request recorded: %+v", ins.whistles)
	}
}

func TestMiddleware_ClientEvent(t *testing.T) {
	ins := &captureInserter{}
	appHits := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { appHits++ })
	m := newTestMiddleware(t, ins, stubIdentity{}, allAutolog(), MiddlewareConfig{UseCookies: true}, next)

	form := url.Values{"args": {"clicked\tbutton"}}
	r := httptest.NewRequest(http.MethodPost, "/whistle", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	m.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("client event body not empty: %q", w.Body.String())
	}
	if appHits != 0 {
		t.Fatalf("client event reached the application")
	}
	if len(ins.whistles) != 1 {
		t.Fatalf("got %d whistles, want 1", len(ins.whistles))
	}
	got := ins.whistles[0]
	if got.RequestMethod != model.ClientEventMethod {
		t.Errorf("method: got %q, want %q", got.RequestMethod, model.ClientEventMethod)
	}
	if got.RequestPath != "" {
		t.Errorf("path: got %q, want empty", got.RequestPath)
	}
	if got.RequestSummary != "clicked\tbutton" {
		t.Errorf("request summary: got %q", got.RequestSummary)
	}
	if got.ResponseCode != http.StatusNoContent {
		t.Errorf("code: got %d, want 204", got.ResponseCode)
	}
	if got.SubjectID != "anon-token" {
		t.Errorf("subject: got %q, want anon-token", got.SubjectID)
	}
}

func TestMiddleware_StaffNeverRecorded(t *testing.T) {
	ins := &captureInserter{}
	identity := stubIdentity{info: stubInfo{staff: true, attrs: map[string]string{"id": "7"}}}
	m := newTestMiddleware(t, ins, identity, allAutolog(), MiddlewareConfig{UseCookies: true}, nil)

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin-ish", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if len(ins.whistles) != 0 {
		t.Fatalf("staff request recorded: %+v", ins.whistles)
	}
}

func TestMiddleware_AutologGate(t *testing.T) {
	// No autolog flags and no notes: nothing is written.
	ins := &captureInserter{}
	m := newTestMiddleware(t, ins, stubIdentity{}, RecorderConfig{}, MiddlewareConfig{UseCookies: true}, nil)
	m.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quiet", nil))
	if len(ins.whistles) != 0 {
		t.Fatalf("gated request recorded: %+v", ins.whistles)
	}

	// Notes alone justify a write even with all flags off.
	ins = &captureInserter{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).AddRequest("searched", "gophers")
		FromContext(r.Context()).AddResponse(3, "hits")
	})
	m = newTestMiddleware(t, ins, stubIdentity{}, RecorderConfig{}, MiddlewareConfig{UseCookies: true}, next)
	m.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search", nil))
	if len(ins.whistles) != 1 {
		t.Fatalf("got %d whistles, want 1", len(ins.whistles))
	}
	if got := ins.whistles[0].RequestSummary; got != "searched\tgophers" {
		t.Errorf("request summary: got %q", got)
	}
	if got := ins.whistles[0].ResponseSummary; got != "3\thits" {
		t.Errorf("response summary: got %q", got)
	}

	// A single enabled flag is enough without notes.
	ins = &captureInserter{}
	m = newTestMiddleware(t, ins, stubIdentity{}, RecorderConfig{AutologResponseCode: true}, MiddlewareConfig{UseCookies: true}, nil)
	m.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quiet", nil))
	if len(ins.whistles) != 1 {
		t.Fatalf("got %d whistles, want 1", len(ins.whistles))
	}
}

func TestMiddleware_CapturesStatusAndViewport(t *testing.T) {
	ins := &captureInserter{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	m := newTestMiddleware(t, ins, stubIdentity{}, allAutolog(), MiddlewareConfig{UseCookies: true}, next)

	r := httptest.NewRequest(http.MethodGet, "/missing", nil)
	r.Header.Set("User-Agent", "TestBrowser/1.0")
	r.AddCookie(&http.Cookie{Name: model.ViewportCookieName, Value: "1920x1080"})
	w := httptest.NewRecorder()
	m.ServeHTTP(w, r)

	if len(ins.whistles) != 1 {
		t.Fatalf("got %d whistles, want 1", len(ins.whistles))
	}
	got := ins.whistles[0]
	if got.ResponseCode != http.StatusNotFound {
		t.Errorf("code: got %d, want 404", got.ResponseCode)
	}
	if got.ViewportDimensions != "1920x1080" {
		t.Errorf("viewport: got %q", got.ViewportDimensions)
	}
	if got.UserAgent != "TestBrowser/1.0" {
		t.Errorf("user agent: got %q", got.UserAgent)
	}
	if got.RequestMethod != http.MethodGet || got.RequestPath != "/missing" {
		t.Errorf("request: got %s %s", got.RequestMethod, got.RequestPath)
	}

	// The viewport cookie was already present, so no placeholder was set.
	for _, c := range w.Result().Cookies() {
		if c.Name == model.ViewportCookieName {
			t.Fatalf("viewport cookie re-set: %+v", c)
		}
	}
}

func TestMiddleware_SetsViewportPlaceholderOnce(t *testing.T) {
	ins := &captureInserter{}
	m := newTestMiddleware(t, ins, stubIdentity{}, allAutolog(), MiddlewareConfig{UseCookies: true}, nil)

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var found bool
	for _, c := range w.Result().Cookies() {
		if c.Name == model.ViewportCookieName {
			found = true
			if c.Value != "" || c.Path != "/" {
				t.Errorf("placeholder cookie: %+v", c)
			}
		}
	}
	if !found {
		t.Fatalf("viewport placeholder cookie not set")
	}
}

func TestMiddleware_InsertFailureLeavesResponseIntact(t *testing.T) {
	ins := &captureInserter{err: errors.New("disk full")}
	m := newTestMiddleware(t, ins, stubIdentity{}, allAutolog(), MiddlewareConfig{UseCookies: true}, nil)

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/page", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("body: got %q, want ok", w.Body.String())
	}
}

func TestMiddleware_LoginAttributedToUser(t *testing.T) {
	ins := &captureInserter{}
	identity := &mutableIdentity{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity.info = stubInfo{attrs: map[string]string{"id": "42"}}
	})
	resolver := NewResolver(identity, &stubTokens{token: "anon-token"}, "id")
	rec := NewRecorder(ins, resolver, allAutolog())
	m := NewMiddleware(MiddlewareConfig{UseCookies: true}, rec, next)

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))

	if len(ins.whistles) != 1 {
		t.Fatalf("got %d whistles, want 1", len(ins.whistles))
	}
	got := ins.whistles[0]
	if got.SubjectID != "42" || !got.IsAuthenticated {
		t.Fatalf("login attributed to %q (authenticated=%t), want user 42", got.SubjectID, got.IsAuthenticated)
	}
}

func TestMiddleware_CookiesDisabledSkipsAnonymous(t *testing.T) {
	ins := &captureInserter{}
	m := newTestMiddleware(t, ins, stubIdentity{}, allAutolog(), MiddlewareConfig{UseCookies: false}, nil)

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/page", nil))

	if len(ins.whistles) != 0 {
		t.Fatalf("anonymous request recorded without cookies: %+v", ins.whistles)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("cookies set while disabled: %+v", w.Result().Cookies())
	}

	// Authenticated users are still recorded.
	identity := stubIdentity{info: stubInfo{attrs: map[string]string{"id": "42"}}}
	m = newTestMiddleware(t, ins, identity, allAutolog(), MiddlewareConfig{UseCookies: false}, nil)
	m.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page", nil))
	if len(ins.whistles) != 1 || ins.whistles[0].SubjectID != "42" {
		t.Fatalf("authenticated record without cookies: %+v", ins.whistles)
	}
}
