package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FrameAnalyzer is the external collaborator that turns a screen frame into
// an analysis. Implemented by the Gemini client.
type FrameAnalyzer interface {
	AnalyzeFrame(ctx context.Context, imageB64 string) (string, error)
}

// Ingest is the per-session frame pipeline. Inbound frames land in a
// single-slot inbox where the newest frame overwrites any unconsumed one;
// a ticker drains the slot at the configured interval and forwards the
// frame to the analyzer. The pipeline favors freshness over completeness:
// a stale frame's analysis has no value, so excess frames are dropped, not
// queued.
type Ingest struct {
	session  *Session
	analyzer FrameAnalyzer
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	pending string // latest unconsumed frame, "" = consumed

	drops    atomic.Uint64
	forwards atomic.Uint64

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// NewIngest creates a pipeline bound to one session.
func NewIngest(session *Session, analyzer FrameAnalyzer, interval, timeout time.Duration) *Ingest {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Ingest{
		session:  session,
		analyzer: analyzer,
		interval: interval,
		timeout:  timeout,
		stopped:  make(chan struct{}),
	}
}

// Start launches the forwarding loop. It runs until Stop is called, the
// context is cancelled, or the session closes.
func (in *Ingest) Start(ctx context.Context) {
	in.wg.Add(1)
	go in.run(ctx)
}

// Offer submits an inbound frame. Returns false if the pipeline has been
// stopped or the session is gone; the frame is rejected, not queued. If a
// previous frame is still waiting in the inbox it is overwritten
// (most-recent-wins).
func (in *Ingest) Offer(imageB64 string) bool {
	select {
	case <-in.stopped:
		return false
	default:
	}
	if in.session.Closed() {
		return false
	}

	in.mu.Lock()
	if in.pending != "" {
		in.drops.Add(1)
	}
	in.pending = imageB64
	in.mu.Unlock()
	return true
}

// Stop drains the pipeline: no new frames are accepted, an in-flight
// analyzer call is allowed to finish, then the loop exits. Idempotent and
// safe to call concurrently.
func (in *Ingest) Stop() {
	in.stopOnce.Do(func() {
		close(in.stopped)
	})
	in.wg.Wait()
}

// Dropped returns the number of frames overwritten before being forwarded.
func (in *Ingest) Dropped() uint64 {
	return in.drops.Load()
}

// Forwarded returns the number of frames handed to the analyzer.
func (in *Ingest) Forwarded() uint64 {
	return in.forwards.Load()
}

func (in *Ingest) run(ctx context.Context) {
	defer in.wg.Done()

	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			in.forwardPending(ctx)
		case <-in.stopped:
			return
		case <-in.session.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (in *Ingest) forwardPending(ctx context.Context) {
	in.mu.Lock()
	frame := in.pending
	in.pending = ""
	in.mu.Unlock()

	if frame == "" {
		return
	}

	in.forwards.Add(1)

	callCtx := ctx
	var cancel context.CancelFunc
	if in.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}

	analysis, err := in.analyzer.AnalyzeFrame(callCtx, frame)
	if err != nil {
		// No event, no retry; the next frame to arrive gets analyzed.
		slog.Warn("Frame analysis failed", "session_id", in.session.ID, "error", err)
		return
	}

	if err := in.session.Send(AnalysisEvent(analysis)); err != nil {
		slog.Debug("Failed to deliver analysis", "session_id", in.session.ID, "error", err)
	}
}
