// Package adapter provides the tail/replay JSONL input adapter of
// spec.md §6. The kernel-plaintext (eBPF) input adapter lives in
// internal/kernelcapture (on top of internal/ebpf) and reuses this
// package's Stats; the account-query endpoint lives in internal/rpc.
package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/glasswally/glasswally/internal/event"
)

// DefaultChannelCapacity is the orchestrator's bounded MPMC input
// channel capacity (spec.md §5).
const DefaultChannelCapacity = 65536

// Stats counts what an adapter run produced.
type Stats struct {
	Decoded int
	Skipped int
}

// FileAdapter reads one JSON event per line from a file (tail/replay
// mode). In replay mode it paces emission using each event's own
// timestamp deltas scaled by Speed; Speed <= 0 means "as fast as
// possible" (tail mode's default, and replay's --speed 0 shortcut).
type FileAdapter struct {
	Path  string
	Speed float64
	Log   zerolog.Logger
}

// Run streams decoded events onto out until EOF or ctx cancellation.
// It never closes out; the caller owns the channel's lifetime across
// potentially multiple adapters.
func (a *FileAdapter) Run(ctx context.Context, out chan<- event.Event) (Stats, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return Stats{}, fmt.Errorf("adapter: open %s: %w", a.Path, err)
	}
	defer f.Close()
	return a.consume(ctx, f, out)
}

// pollInterval is how often RunTail checks for newly appended lines
// once it has drained the file's current contents.
const pollInterval = 200 * time.Millisecond

// RunTail behaves like Run but never returns on EOF: after draining
// what's currently on disk it polls for appended lines, the way `tail
// -f` does, until ctx is cancelled. Speed pacing does not apply in
// this mode — live events are forwarded as they're observed.
func (a *FileAdapter) RunTail(ctx context.Context, out chan<- event.Event) (Stats, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return Stats{}, fmt.Errorf("adapter: open %s: %w", a.Path, err)
	}
	defer f.Close()

	var stats Stats
	reader := bufio.NewReaderSize(f, 1<<20)
	onSkip := func(line int, err error) {
		stats.Skipped++
		a.Log.Warn().Int("line", line).Err(err).Msg("adapter: skipped malformed line")
	}
	onEvent := func(ev event.Event) {
		stats.Decoded++
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	for {
		if err := event.DecodeJSONL(reader, onEvent, onSkip); err != nil {
			return stats, fmt.Errorf("adapter: decode %s: %w", a.Path, err)
		}
		select {
		case <-ctx.Done():
			return stats, nil
		case <-time.After(pollInterval):
		}
	}
}

func (a *FileAdapter) consume(ctx context.Context, r io.Reader, out chan<- event.Event) (Stats, error) {
	var stats Stats
	var lastTS time.Time
	reader := bufio.NewReaderSize(r, 1<<20)

	onSkip := func(line int, err error) {
		stats.Skipped++
		a.Log.Warn().Int("line", line).Err(err).Msg("adapter: skipped malformed line")
	}
	onEvent := func(ev event.Event) {
		stats.Decoded++
		if a.Speed > 0 && !lastTS.IsZero() {
			delta := ev.Timestamp.Sub(lastTS)
			if delta > 0 {
				paced := time.Duration(float64(delta) / a.Speed)
				select {
				case <-time.After(paced):
				case <-ctx.Done():
				}
			}
		}
		lastTS = ev.Timestamp
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}

	err := event.DecodeJSONL(reader, onEvent, onSkip)
	if err != nil {
		return stats, fmt.Errorf("adapter: decode %s: %w", a.Path, err)
	}
	return stats, nil
}
