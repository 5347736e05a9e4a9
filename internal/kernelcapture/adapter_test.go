package kernelcapture

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/glasswally/glasswally/internal/event"
)

func TestRunReturnsNilOnShutdownWithoutSendingEvents(t *testing.T) {
	a := &Adapter{Log: zerolog.New(io.Discard)}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := make(chan event.Event, 1)
	_, err := a.Run(ctx, out)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil on ordinary shutdown cancellation", err)
	}
	select {
	case ev := <-out:
		t.Fatalf("Run() sent an event %+v, want none (HTTP reassembly is out of scope)", ev)
	default:
	}
}
