package whistle

import (
	"fmt"
	"net/http"
)

// Info describes an authenticated user to the resolver.
type Info interface {
	// IsStaff reports whether the user is staff; staff requests are never logged.
	IsStaff() bool
	// Attribute returns the named identifier attribute, if the user has it.
	Attribute(name string) (string, bool)
}

// Identity adapts the host application's authentication layer. Lookup returns
// the user for the request and whether the request is authenticated.
type Identity interface {
	Lookup(r *http.Request) (Info, bool)
}

// TokenSource supplies a stable anonymous session token, minting one as a
// side effect when the browser session has none yet. The token must be
// established before the response is written.
type TokenSource interface {
	Token(w http.ResponseWriter, r *http.Request) (string, error)
}

// AnonymousIdentity treats every request as unauthenticated. Hosts with a
// real authentication layer provide their own Identity implementation.
type AnonymousIdentity struct{}

// Lookup always reports unauthenticated.
func (AnonymousIdentity) Lookup(*http.Request) (Info, bool) { return nil, false }

const fallbackIDField = "id"

// Subject is the resolved logging subject for one request.
type Subject struct {
	ID            string
	Authenticated bool
	Staff         bool
}

// Resolver determines the subject a whistle is attributed to: the configured
// identifier attribute of the authenticated user, or a stable anonymous
// session token.
type Resolver struct {
	identity Identity
	tokens   TokenSource
	idField  string
}

// NewResolver creates a Resolver. idField defaults to "id".
func NewResolver(identity Identity, tokens TokenSource, idField string) *Resolver {
	if idField == "" {
		idField = fallbackIDField
	}
	return &Resolver{identity: identity, tokens: tokens, idField: idField}
}

// Resolve returns the subject for the request. For authenticated users the
// configured identifier attribute is tried first, then the default one; an
// error is returned only when both are absent. For anonymous requests the
// session token is returned, minting one if needed.
func (rv *Resolver) Resolve(w http.ResponseWriter, r *http.Request) (Subject, error) {
	if sub, ok, err := rv.ResolveAuthenticated(r); ok || err != nil {
		return sub, err
	}

	token, err := rv.tokens.Token(w, r)
	if err != nil {
		return Subject{}, fmt.Errorf("resolve subject: %w", err)
	}
	return Subject{ID: token}, nil
}

// ResolveAuthenticated resolves the subject from the authentication layer
// only, without touching the anonymous token store. It reports ok=false for
// anonymous requests. Used when cookies are disabled, where anonymous
// requests have no stable subject and are not recorded.
func (rv *Resolver) ResolveAuthenticated(r *http.Request) (Subject, bool, error) {
	info, ok := rv.identity.Lookup(r)
	if !ok {
		return Subject{}, false, nil
	}
	id, found := info.Attribute(rv.idField)
	if !found {
		id, found = info.Attribute(fallbackIDField)
	}
	if !found {
		return Subject{}, true, fmt.Errorf("resolve subject: user has neither %q nor %q attribute", rv.idField, fallbackIDField)
	}
	return Subject{ID: id, Authenticated: true, Staff: info.IsStaff()}, true, nil
}
