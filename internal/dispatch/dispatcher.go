package dispatch

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"postpilot/internal/entity"
	"postpilot/internal/platform"
)

// Outcome is the single shape every dispatch resolves to. No transport error
// ever leaves the dispatcher unnormalized.
type Outcome struct {
	Success  bool
	RemoteID string
	URL      string
	Message  string
}

func failure(format string, args ...any) Outcome {
	return Outcome{Success: false, Message: fmt.Sprintf(format, args...)}
}

// IntegrationLookup resolves (user, platform) to a connection record.
// Implementation: postgresql.IntegrationRepository.
type IntegrationLookup interface {
	Lookup(ctx context.Context, userID uuid.UUID, p entity.Platform) (*entity.Integration, error)
}

// Clients resolves the platform enum to a publish client.
// Implementation: platform.Registry.
type Clients interface {
	Client(p entity.Platform) (platform.Client, bool)
}

// Dispatcher bridges a claimed job to the external platform client: resolve
// the integration, build the content, invoke, normalize.
type Dispatcher struct {
	integrations IntegrationLookup
	clients      Clients
	callTimeout  time.Duration
}

func NewDispatcher(integrations IntegrationLookup, clients Clients, callTimeout time.Duration) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Dispatcher{
		integrations: integrations,
		clients:      clients,
		callTimeout:  callTimeout,
	}
}

// Execute runs one delivery attempt for a claimed job. Every path resolves
// to an Outcome; a non-success outcome counts as a failed attempt and goes
// through the retry policy like any other.
func (d *Dispatcher) Execute(ctx context.Context, job *entity.PostJob) Outcome {
	integration, err := d.integrations.Lookup(ctx, job.UserID, job.Platform)
	if err != nil {
		return failure("integration lookup: %v", err)
	}
	if !integration.Connected {
		// The user may reconnect before the retry budget runs out.
		return failure("no connected %s integration", job.Platform)
	}

	client, ok := d.clients.Client(job.Platform)
	if !ok {
		return failure("no client registered for platform %s", job.Platform)
	}

	content := platform.Content{
		Text:     job.Content,
		ImageURL: firstMediaURL(job.MediaURLs, imageExtensions),
		VideoURL: firstMediaURL(job.MediaURLs, videoExtensions),
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	result, err := client.Post(callCtx, integration.Credentials, content)
	if err != nil {
		return failure("%v", err)
	}

	log.Printf("[dispatch] job_id=%s platform=%s remote_id=%s", job.ID, job.Platform, result.RemoteID)
	return Outcome{Success: true, RemoteID: result.RemoteID, URL: result.URL}
}

var (
	imageExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".webm": true, ".avi": true,
	}
)

// firstMediaURL picks the first url whose extension is in the given set.
// Query strings are stripped before matching.
func firstMediaURL(urls []string, exts map[string]bool) string {
	for _, u := range urls {
		clean := u
		if i := strings.IndexAny(clean, "?#"); i >= 0 {
			clean = clean[:i]
		}
		if exts[strings.ToLower(path.Ext(clean))] {
			return u
		}
	}
	return ""
}
