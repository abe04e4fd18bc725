package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagesnap/pagesnap/internal/capture"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestHubDeliversEventsToAllSinks(t *testing.T) {
	t.Parallel()

	a := &recordingSink{}
	b := &recordingSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, a, b)

	for i := 0; i < 5; i++ {
		hub.Emit(Event{
			JobID:  "job-1",
			TS:     time.Now(),
			Stage:  StageUnitDone,
			URL:    "https://example.com/",
			Device: capture.DeviceDesktop,
		})
	}
	require.NoError(t, hub.Close(context.Background()))

	require.Len(t, a.snapshot(), 5)
	require.Len(t, b.snapshot(), 5)
	require.True(t, a.closed)
	require.True(t, b.closed)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(Event{JobID: "", TS: time.Now(), Stage: StageJobStart})
	hub.Emit(Event{JobID: "job-1", TS: time.Now(), Stage: StageJobStart})
	require.NoError(t, hub.Close(context.Background()))

	got := sink.snapshot()
	require.Len(t, got, 1)
	require.Equal(t, "job-1", got[0].JobID)
}

func TestHubCloseIsIdempotentAndEmitAfterCloseIsSafe(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{JobID: "job-1", TS: time.Now(), Stage: StageJobStart})
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(Event{JobID: "job-2", TS: time.Now(), Stage: StageJobStart})
	require.Len(t, sink.snapshot(), 1)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := Event{JobID: "j", TS: time.Now(), Stage: StageJobStart}
	require.NoError(t, valid.Validate())

	missingDevice := Event{JobID: "j", TS: time.Now(), Stage: StageUnitDone, URL: "https://a.test/"}
	require.Error(t, missingDevice.Validate())

	unknown := Event{JobID: "j", TS: time.Now(), Stage: Stage("BOGUS")}
	require.Error(t, unknown.Validate())
}
