package eventstest

import (
	"context"
	"testing"

	"github.com/dkeye/vlink/internal/events"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	_ = r.Publish(ctx, events.TopicChunkStored, events.ChunkStored{})
	_ = r.Publish(ctx, events.TopicEventStored, events.EventStored{})
	_ = r.Publish(ctx, events.TopicChunkStored, events.ChunkStored{})

	if got := len(r.Events(events.TopicChunkStored)); got != 2 {
		t.Errorf("chunk events = %d, want 2", got)
	}
	if got := r.Topics(); len(got) != 3 || got[1] != events.TopicEventStored {
		t.Errorf("topics = %v", got)
	}
}
