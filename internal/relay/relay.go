// Package relay moves bytes between two duplex endpoints until either side
// finishes, errors, or the surrounding context is cancelled. It carries no
// protocol awareness; callers adapt their transports to the Endpoint
// interface and interpret the Outcome.
package relay

import (
	"context"
	"sync"
	"sync/atomic"
)

// Endpoint is one side of a bidirectional relay. Read returns the next chunk
// of the stream; end of stream and transport failures are reported through
// the error. Close must be safe to call while a Read or Write is blocked so
// the relay can unstick the losing pump, and may be called more than once.
type Endpoint interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, p []byte) error
	Close() error
}

// Outcome reports how a relay ended.
type Outcome struct {
	// AToB and BToA are the byte counts forwarded in each direction.
	AToB int64
	BToA int64
	// Reason classifies the first event that terminated the relay.
	Reason Reason
	// Err is non-nil only for unexpected failures; peer closes and
	// shutdown-races are swallowed.
	Err error
}

// Reason classifies why a relay terminated.
type Reason string

const (
	// ReasonPeerClosed means one side ended its stream normally.
	ReasonPeerClosed Reason = "peer-closed"
	// ReasonStreamUnavailable means a stream went away mid-relay
	// (cancellation, reset, or a close racing the other pump).
	ReasonStreamUnavailable Reason = "stream-unavailable"
	// ReasonUnexpected means an error that is not normal termination.
	ReasonUnexpected Reason = "unexpected"
)

// Run pumps bytes between a and b in both directions until either pump
// finishes. The first pump to finish wins: the other direction is cancelled
// and both endpoints are closed exactly once, even when both directions fail
// concurrently. Run blocks until both pumps have returned.
func Run(ctx context.Context, a, b Endpoint) Outcome {
	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		atob, btoa int64
		closeOnce  sync.Once
		winnerOnce sync.Once
		out        Outcome
	)

	// finish records the winning termination cause, then tears down the
	// relay. Closing both endpoints unblocks the losing pump even when its
	// transport does not observe context cancellation.
	finish := func(err error) {
		winnerOnce.Do(func() {
			out.Reason, out.Err = Classify(err)
		})
		cancel()
		closeOnce.Do(func() {
			a.Close()
			b.Close()
		})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		finish(pump(relayCtx, a, b, &atob))
	}()
	finish(pump(relayCtx, b, a, &btoa))
	wg.Wait()

	out.AToB = atomic.LoadInt64(&atob)
	out.BToA = atomic.LoadInt64(&btoa)
	return out
}

// pump copies chunks from src to dst, preserving message boundaries, until
// the source ends or a write fails.
func pump(ctx context.Context, src, dst Endpoint, count *int64) error {
	for {
		data, err := src.Read(ctx)
		if len(data) > 0 {
			if werr := dst.Write(ctx, data); werr != nil {
				return werr
			}
			atomic.AddInt64(count, int64(len(data)))
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
