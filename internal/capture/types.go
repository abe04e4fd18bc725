// Package capture defines the core domain types shared across subsystems.
package capture

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a capture job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further status or progress mutation is allowed.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Device names a supported emulation profile.
type Device string

// Supported devices, in the fixed order units are rendered per page.
const (
	DeviceDesktop Device = "desktop"
	DeviceTablet  Device = "tablet"
	DeviceMobile  Device = "mobile"
)

// DeviceOrder is the declared render order for the per-page device loop.
var DeviceOrder = []Device{DeviceDesktop, DeviceTablet, DeviceMobile}

// Valid reports whether d is one of the supported devices.
func (d Device) Valid() bool {
	switch d {
	case DeviceDesktop, DeviceTablet, DeviceMobile:
		return true
	default:
		return false
	}
}

// DeviceProfile describes the viewport and user-agent emulated during a render.
type DeviceProfile struct {
	Device           Device
	Width            int64
	Height           int64
	DevicePixelRatio float64
	Mobile           bool
	Touch            bool
	UserAgent        string
}

var deviceProfiles = map[Device]DeviceProfile{
	DeviceDesktop: {
		Device:           DeviceDesktop,
		Width:            1920,
		Height:           1080,
		DevicePixelRatio: 1,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	},
	DeviceTablet: {
		Device:           DeviceTablet,
		Width:            1024,
		Height:           768,
		DevicePixelRatio: 2,
		Mobile:           true,
		Touch:            true,
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 " +
			"(KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	},
	DeviceMobile: {
		Device:           DeviceMobile,
		Width:            390,
		Height:           844,
		DevicePixelRatio: 3,
		Mobile:           true,
		Touch:            true,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 " +
			"(KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
	},
}

// ProfileFor returns the fixed profile for a device.
func ProfileFor(d Device) (DeviceProfile, error) {
	p, ok := deviceProfiles[d]
	if !ok {
		return DeviceProfile{}, fmt.Errorf("unknown device %q", d)
	}
	return p, nil
}

// MaxPageBudget caps how many pages a single job may crawl.
const MaxPageBudget = 300

// ImageExt is the file extension of every stored screenshot.
const ImageExt = "webp"

// ImageContentType is the MIME type of stored screenshots.
const ImageContentType = "image/webp"

// Request captures per-job options submitted by the client.
type Request struct {
	OwnerID       string   `json:"owner_id"`
	SeedURL       string   `json:"url"`
	Devices       []Device `json:"devices"`
	PageBudget    int      `json:"max_pages"`
	AllPages      bool     `json:"all_pages"`
	ExcludePopups bool     `json:"exclude_popups"`
}

// EffectiveBudget resolves the page budget, honoring the all-pages flag.
func (r Request) EffectiveBudget() int {
	if r.AllPages {
		return MaxPageBudget
	}
	if r.PageBudget <= 0 {
		return 1
	}
	return r.PageBudget
}

// Job is the metadata persisted for each accepted capture request.
type Job struct {
	ID            string      `json:"id"`
	OwnerID       string      `json:"owner_id"`
	SeedURL       string      `json:"url"`
	Devices       []Device    `json:"devices"`
	PageBudget    int         `json:"page_budget"`
	ExcludePopups bool        `json:"exclude_popups"`
	Status        JobStatus   `json:"status"`
	Progress      int         `json:"progress"`
	ErrorText     string      `json:"error_message,omitempty"`
	PageCount     int         `json:"page_count"`
	FileMapping   []FileEntry `json:"file_mapping,omitempty"`
	DownloadCount int         `json:"download_count"`
	Submitted     time.Time   `json:"submitted_at"`
	ExpiresAt     time.Time   `json:"expires_at"`
}

// StoragePrefix is the object-store namespace owned by this job.
// Artifacts live flat under it, enumerable by prefix listing.
func (j Job) StoragePrefix() string {
	return fmt.Sprintf("%s/%s", j.OwnerID, j.ID)
}

// Expired reports whether the job's retention window has passed.
func (j Job) Expired(now time.Time) bool {
	return now.After(j.ExpiresAt)
}

// FileEntry records which stored filename corresponds to which source URL
// and device, enabling the export manifest.
type FileEntry struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	Device    Device `json:"device"`
	PageIndex int    `json:"page_index"`
}

// Task is a queued unit of orchestration work: one accepted job ready to run.
type Task struct {
	JobID     string
	Submitted time.Time
}
