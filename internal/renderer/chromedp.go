// Package renderer drives headless Chrome via chromedp to produce full-page
// screenshots under device emulation.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/capture"
)

// Quality is the fixed lossy compression level for captured images.
const Quality = 85

// Config controls navigation and capture behavior for a Session.
type Config struct {
	// NavigationTimeout bounds each navigation; exceeding it is a timeout
	// render error, not fatal to the browser session.
	NavigationTimeout time.Duration
	// SettleDelay is a short fixed wait after navigation so client-side
	// rendering can finish before suppression and capture. DOM-ready plus
	// this delay approximates a network-idle wait without stalling on pages
	// that never go quiet (long-polling, analytics beacons).
	SettleDelay time.Duration
	// ChromePath optionally points at a Chromium binary; empty uses the
	// chromedp default lookup.
	ChromePath string
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout > 0 {
		return c.NavigationTimeout
	}
	return 60 * time.Second
}

func (c Config) settleDelay() time.Duration {
	if c.SettleDelay > 0 {
		return c.SettleDelay
	}
	return 1500 * time.Millisecond
}

// Session owns one headless browser process. Each Render and ExtractLinks
// call opens and closes its own tab so no cookie or scroll state leaks
// between captures. A Session belongs to exactly one job at a time.
type Session struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewSession launches a browser and verifies it is usable.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Session{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close tears down the browser and allocator contexts. Safe on all exit
// paths; subsequent Render calls fail.
func (s *Session) Close(_ context.Context) error {
	if s == nil {
		return nil
	}
	s.browserCancel()
	s.allocCancel()
	return nil
}

// Render navigates to pageURL under the given device profile and returns the
// full-page image bytes. Failures come back as *capture.RenderError.
func (s *Session) Render(ctx context.Context, pageURL string, device capture.Device, excludePopups bool) ([]byte, error) {
	profile, err := capture.ProfileFor(device)
	if err != nil {
		return nil, &capture.RenderError{Kind: capture.RenderBrowser, URL: pageURL, Device: device, Err: err}
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.cfg.navigationTimeout())
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var shot []byte
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(profile.UserAgent),
		emulation.SetDeviceMetricsOverride(profile.Width, profile.Height, profile.DevicePixelRatio, profile.Mobile),
		emulation.SetTouchEmulationEnabled(profile.Touch),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.settleDelay()),
	}
	if excludePopups {
		tasks = append(tasks, chromedp.Evaluate(popupSuppressionJS, nil))
	}
	tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
		buf, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatWebp).
			WithQuality(Quality).
			WithCaptureBeyondViewport(true).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		shot = buf
		return nil
	}))

	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, s.classify(pageURL, device, err)
	}
	if len(shot) == 0 {
		return nil, &capture.RenderError{
			Kind:   capture.RenderEmptyCapture,
			URL:    pageURL,
			Device: device,
			Err:    errors.New("zero-byte capture"),
		}
	}
	return shot, nil
}

// ExtractLinks navigates to pageURL with the desktop profile and returns all
// anchor hrefs found after the settle delay.
func (s *Session) ExtractLinks(ctx context.Context, pageURL string) ([]string, error) {
	profile, err := capture.ProfileFor(capture.DeviceDesktop)
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.cfg.navigationTimeout())
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var hrefs []string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(profile.UserAgent),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.settleDelay()),
		chromedp.Evaluate(`Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`, &hrefs),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return nil, fmt.Errorf("extract links from %s: %w", pageURL, err)
	}
	return hrefs, nil
}

func (s *Session) classify(pageURL string, device capture.Device, err error) error {
	kind := capture.RenderBrowser
	if errors.Is(err, context.DeadlineExceeded) {
		kind = capture.RenderTimeout
	}
	s.logger.Warn("render failed",
		zap.String("url", pageURL),
		zap.String("device", string(device)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return &capture.RenderError{Kind: kind, URL: pageURL, Device: device, Err: err}
}

// forwardCancel propagates cancellation of the caller's context into a
// chromedp task context without tying their lifetimes together.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
