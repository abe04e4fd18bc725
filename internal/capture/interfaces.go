package capture

import (
	"context"
	"time"
)

// JobStore is the durable record of job status, progress, expiry and file
// mapping. Implementations must serialize concurrent writes to the same job
// so a terminal status, once set, is never overwritten.
type JobStore interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	// SetProgress persists a progress percentage. It is a silent no-op once
	// the job is terminal, so a stray late update cannot resurrect a
	// cancelled or errored job.
	SetProgress(ctx context.Context, jobID string, percent int) error
	SetPageCount(ctx context.Context, jobID string, pages int) error
	// Complete transitions processing -> completed with progress 100 and the
	// final file mapping. It fails if the job is not processing.
	Complete(ctx context.Context, jobID string, mapping []FileEntry) error
	// Fail transitions processing -> error and records the message.
	Fail(ctx context.Context, jobID string, message string) error
	// RequestCancel transitions processing -> cancelled. It returns
	// ErrNotCancellable if the job is already terminal.
	RequestCancel(ctx context.Context, jobID string) error
	IncrementDownloads(ctx context.Context, jobID string) error
	ListExpired(ctx context.Context, now time.Time) ([]Job, error)
	Delete(ctx context.Context, jobID string) error
}

// BlobStore persists screenshot artifacts in a flat per-job namespace.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	// List returns the object paths under prefix, lexicographically ordered.
	List(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Renderer drives one browser page through navigation, device emulation,
// popup suppression and screenshot extraction for a single (URL, device) pair.
type Renderer interface {
	Render(ctx context.Context, pageURL string, device Device, excludePopups bool) ([]byte, error)
	Close(ctx context.Context) error
}

// LinkSource extracts same-document anchor hrefs from a page; the crawler
// uses it to discover same-origin URLs.
type LinkSource interface {
	ExtractLinks(ctx context.Context, pageURL string) ([]string, error)
}

// Publisher pushes terminal job events to an external topic.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
