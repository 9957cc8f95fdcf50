// Package whistle implements the request interception layer: per-request note
// accumulation, subject resolution, and whistle recording.
package whistle

import (
	"context"
	"fmt"
	"strings"
)

// Notes buffers application-supplied request/response annotations for one
// request. It is request-scoped and never shared across requests, so no
// locking is needed.
type Notes struct {
	request  []string
	response []string
}

// AddRequest appends stringified values to the request notes in call order.
func (n *Notes) AddRequest(values ...any) {
	for _, v := range values {
		n.request = append(n.request, fmt.Sprint(v))
	}
}

// AddResponse appends stringified values to the response notes in call order.
func (n *Notes) AddResponse(values ...any) {
	for _, v := range values {
		n.response = append(n.response, fmt.Sprint(v))
	}
}

// RequestSummary joins the request notes with tabs.
func (n *Notes) RequestSummary() string {
	return strings.Join(n.request, "\t")
}

// ResponseSummary joins the response notes with tabs.
func (n *Notes) ResponseSummary() string {
	return strings.Join(n.response, "\t")
}

// Empty reports whether no notes were added.
func (n *Notes) Empty() bool {
	return len(n.request) == 0 && len(n.response) == 0
}

type notesKey struct{}

// NewContext returns a context carrying the given notes.
func NewContext(ctx context.Context, n *Notes) context.Context {
	return context.WithValue(ctx, notesKey{}, n)
}

// FromContext returns the notes the middleware attached to the request
// context, or nil when the request is not being intercepted.
func FromContext(ctx context.Context) *Notes {
	n, _ := ctx.Value(notesKey{}).(*Notes)
	return n
}
