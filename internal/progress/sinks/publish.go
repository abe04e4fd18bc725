package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pagesnap/pagesnap/internal/capture"
	"github.com/pagesnap/pagesnap/internal/progress"
)

// PublishSink forwards terminal job events to a message publisher so
// downstream consumers can react to finished captures.
type PublishSink struct {
	publisher capture.Publisher
}

// NewPublishSink wraps a publisher as a progress sink.
func NewPublishSink(p capture.Publisher) *PublishSink {
	return &PublishSink{publisher: p}
}

type publishedEvent struct {
	JobID      string `json:"job_id"`
	Stage      string `json:"stage"`
	TS         string `json:"ts"`
	Progress   int    `json:"progress"`
	UnitsDone  int    `json:"units_done"`
	UnitsTotal int    `json:"units_total"`
	Note       string `json:"note,omitempty"`
}

// Consume publishes each terminal event in the batch. Non-terminal
// stages are skipped.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if !evt.Stage.Terminal() {
			continue
		}
		payload, err := json.Marshal(publishedEvent{
			JobID:      evt.JobID,
			Stage:      string(evt.Stage),
			TS:         evt.TS.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Progress:   evt.Progress,
			UnitsDone:  evt.UnitsDone,
			UnitsTotal: evt.UnitsTotal,
			Note:       evt.Note,
		})
		if err != nil {
			return fmt.Errorf("encoding job event: %w", err)
		}
		if err := s.publisher.Publish(ctx, payload); err != nil {
			return fmt.Errorf("publishing job event: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
