// Package packager assembles the downloadable ZIP archive for a completed
// capture job.
package packager

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
)

// ManifestName is the JSON index entry inside every archive.
const ManifestName = "manifest.json"

// SummaryName is the human-readable index entry inside every archive.
const SummaryName = "summary.txt"

// Packager streams job archives out of the blob store.
type Packager struct {
	store  capture.JobStore
	blobs  capture.BlobStore
	clock  capture.Clock
	logger *zap.Logger
}

// New constructs a Packager.
func New(store capture.JobStore, blobs capture.BlobStore, clock capture.Clock, logger *zap.Logger) *Packager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Packager{store: store, blobs: blobs, clock: clock, logger: logger}
}

type manifestEntry struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	Device    string `json:"device"`
	PageIndex int    `json:"page_index"`
}

type manifest struct {
	JobID         string          `json:"job_id"`
	SeedURL       string          `json:"url"`
	GeneratedAt   string          `json:"generated_at"`
	Devices       []string        `json:"devices"`
	PageBudget    int             `json:"page_budget"`
	ExcludePopups bool            `json:"exclude_popups"`
	PageCount     int             `json:"page_count"`
	Files         []manifestEntry `json:"files"`
}

// Archive writes the job's ZIP to w and bumps the download counter. It
// returns capture.ErrNotCompleted unless the job finished successfully and
// capture.ErrExpired once the retention window has passed. Artifacts that
// cannot be fetched are skipped, not fatal, so a partially swept namespace
// still yields a usable archive.
func (p *Packager) Archive(ctx context.Context, jobID string, w io.Writer) (capture.Job, error) {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		return capture.Job{}, fmt.Errorf("loading job: %w", err)
	}
	if job.Status != capture.JobStatusCompleted {
		return job, capture.ErrNotCompleted
	}
	if job.Expired(p.clock.Now()) {
		return job, capture.ErrExpired
	}

	// The storage namespace is authoritative for what goes into the archive;
	// the file mapping supplies per-file metadata where it has an entry.
	prefix := job.StoragePrefix() + "/"
	paths, err := p.blobs.List(ctx, prefix)
	if err != nil {
		return job, fmt.Errorf("listing artifacts: %w", err)
	}
	byName := make(map[string]capture.FileEntry, len(job.FileMapping))
	for _, entry := range job.FileMapping {
		byName[entry.Filename] = entry
	}

	zw := zip.NewWriter(w)
	included := make([]capture.FileEntry, 0, len(paths))
	for _, path := range paths {
		name := strings.TrimPrefix(path, prefix)
		data, gerr := p.blobs.Get(ctx, path)
		if gerr != nil {
			p.logger.Warn("skipping missing artifact",
				zap.String("job_id", jobID),
				zap.String("filename", name),
				zap.Error(gerr))
			continue
		}
		if werr := p.addFile(zw, name, data); werr != nil {
			return job, werr
		}
		entry, ok := byName[name]
		if !ok {
			entry = capture.FileEntry{Filename: name}
		}
		included = append(included, entry)
	}

	if err := p.addManifest(zw, job, included); err != nil {
		return job, err
	}
	if err := p.addSummary(zw, job, included); err != nil {
		return job, err
	}
	if err := zw.Close(); err != nil {
		return job, fmt.Errorf("finalizing archive: %w", err)
	}

	if err := p.store.IncrementDownloads(ctx, jobID); err != nil {
		p.logger.Warn("incrementing download count", zap.String("job_id", jobID), zap.Error(err))
	}
	return job, nil
}

func (p *Packager) addFile(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("adding %s to archive: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s to archive: %w", name, err)
	}
	return nil
}

func (p *Packager) addManifest(zw *zip.Writer, job capture.Job, entries []capture.FileEntry) error {
	devices := make([]string, 0, len(job.Devices))
	for _, d := range job.Devices {
		devices = append(devices, string(d))
	}
	m := manifest{
		JobID:         job.ID,
		SeedURL:       job.SeedURL,
		GeneratedAt:   p.clock.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		Devices:       devices,
		PageBudget:    job.PageBudget,
		ExcludePopups: job.ExcludePopups,
		PageCount:     job.PageCount,
		Files:         make([]manifestEntry, 0, len(entries)),
	}
	for _, e := range entries {
		m.Files = append(m.Files, manifestEntry{
			Filename:  e.Filename,
			URL:       e.URL,
			Device:    string(e.Device),
			PageIndex: e.PageIndex,
		})
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return p.addFile(zw, ManifestName, data)
}

func (p *Packager) addSummary(zw *zip.Writer, job capture.Job, entries []capture.FileEntry) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Screenshots for %s\n", job.SeedURL)
	fmt.Fprintf(&b, "Job %s, %d pages, %d files\n\n", job.ID, job.PageCount, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", e.Filename, e.Device, e.URL)
	}
	return p.addFile(zw, SummaryName, []byte(b.String()))
}
