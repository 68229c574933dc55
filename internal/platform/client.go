package platform

import (
	"context"
	"fmt"

	"postpilot/internal/entity"
)

// Content is what a client publishes: text plus at most one image and one
// video, already selected from the job's media list.
type Content struct {
	Text     string
	ImageURL string
	VideoURL string
}

// Result is the normalized reply from a platform API.
type Result struct {
	RemoteID string
	URL      string
}

// Client publishes content to one platform on behalf of one user. Credentials
// arrive already decrypted, as stored on the integration record. A client
// must return either a Result or an error; it never panics across this
// boundary.
type Client interface {
	Post(ctx context.Context, credentials []byte, content Content) (*Result, error)
}

// Registry maps the closed platform enum to clients. Construction fails on
// unknown platforms, so a typo cannot silently register a dead target.
type Registry struct {
	clients map[entity.Platform]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[entity.Platform]Client)}
}

func (r *Registry) Register(p entity.Platform, c Client) error {
	if !p.Valid() {
		return fmt.Errorf("unknown platform: %s", p)
	}
	r.clients[p] = c
	return nil
}

func (r *Registry) Client(p entity.Platform) (Client, bool) {
	c, ok := r.clients[p]
	return c, ok
}
