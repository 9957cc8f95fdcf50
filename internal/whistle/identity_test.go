package whistle

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolver_ConfiguredAttribute(t *testing.T) {
	identity := stubIdentity{info: stubInfo{attrs: map[string]string{"email": "ada@example.com", "id": "1"}}}
	rv := NewResolver(identity, &stubTokens{token: "unused"}, "email")

	sub, err := rv.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sub.ID != "ada@example.com" || !sub.Authenticated || sub.Staff {
		t.Fatalf("subject: %+v", sub)
	}
}

func TestResolver_FallsBackToID(t *testing.T) {
	identity := stubIdentity{info: stubInfo{attrs: map[string]string{"id": "9"}}}
	rv := NewResolver(identity, &stubTokens{token: "unused"}, "email")

	sub, err := rv.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sub.ID != "9" {
		t.Fatalf("subject id: got %q, want 9", sub.ID)
	}
}

func TestResolver_NoAttributeErrors(t *testing.T) {
	identity := stubIdentity{info: stubInfo{attrs: map[string]string{}}}
	rv := NewResolver(identity, &stubTokens{token: "unused"}, "email")

	if _, err := rv.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)); err == nil {
		t.Fatalf("Resolve with no attributes did not fail")
	}
}

func TestResolver_AnonymousUsesToken(t *testing.T) {
	tokens := &stubTokens{token: "tok-1"}
	rv := NewResolver(stubIdentity{}, tokens, "")

	sub, err := rv.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sub.ID != "tok-1" || sub.Authenticated || sub.Staff {
		t.Fatalf("subject: %+v", sub)
	}
	if tokens.mints != 1 {
		t.Fatalf("token source calls: got %d, want 1", tokens.mints)
	}
}

func TestResolver_AuthenticatedOnlySkipsAnonymous(t *testing.T) {
	tokens := &stubTokens{token: "tok-1"}
	rv := NewResolver(stubIdentity{}, tokens, "id")

	_, ok, err := rv.ResolveAuthenticated(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("ResolveAuthenticated: %v", err)
	}
	if ok {
		t.Fatalf("anonymous request reported as authenticated")
	}
	if tokens.mints != 0 {
		t.Fatalf("token minted during authenticated-only resolution")
	}
}
