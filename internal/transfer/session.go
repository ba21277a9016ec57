package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	objerrors "github.com/input-output-hk/catalyst-forge-libs/objstore/errors"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/objtypes"
	"github.com/input-output-hk/catalyst-forge-libs/objstore/transport"
)

// errSessionFailed is the cancellation cause used when a chunk or the
// finalization step fails, as opposed to an abort or a deadline.
var errSessionFailed = errors.New("transfer session failed")

// transitions lists the legal session state changes.
var transitions = map[objtypes.SessionState][]objtypes.SessionState{
	objtypes.SessionPlanning:     {objtypes.SessionTransferring, objtypes.SessionFailed, objtypes.SessionAborted},
	objtypes.SessionTransferring: {objtypes.SessionFinalizing, objtypes.SessionFailed, objtypes.SessionAborted},
	objtypes.SessionFinalizing:   {objtypes.SessionComplete, objtypes.SessionFailed, objtypes.SessionAborted},
}

// chunk is the coordinator-owned mutable view of a ChunkDescriptor.
// State changes go through compare-and-swap so that a chunk can only be
// claimed by one worker at a time.
type chunk struct {
	desc     objtypes.ChunkDescriptor
	state    atomic.Int32
	attempts atomic.Int32
	digest   atomic.Pointer[objtypes.Digest]

	// rounds and part are only touched by the worker that holds the claim
	rounds int
	part   transport.PartResult
}

func (c *chunk) cas(from, to objtypes.ChunkState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// claim moves the chunk from pending to in-flight.
func (c *chunk) claim() bool { return c.cas(objtypes.ChunkPending, objtypes.ChunkInFlight) }

func (c *chunk) commit() bool { return c.cas(objtypes.ChunkInFlight, objtypes.ChunkCommitted) }

func (c *chunk) fail() bool { return c.cas(objtypes.ChunkInFlight, objtypes.ChunkFailed) }

// replan returns a failed chunk to pending.
func (c *chunk) replan() bool { return c.cas(objtypes.ChunkFailed, objtypes.ChunkPending) }

func (c *chunk) setDigest(d objtypes.Digest) { c.digest.Store(&d) }

func (c *chunk) snapshot() objtypes.ChunkDescriptor {
	d := c.desc
	d.State = objtypes.ChunkState(c.state.Load())
	d.Attempts = int(c.attempts.Load())
	if p := c.digest.Load(); p != nil {
		d.Digest = *p
	}
	return d
}

// Session is one upload or download. Its state is only advanced by the
// goroutine running the transfer; Abort only cancels the session context.
type Session struct {
	id        string
	direction metrics.Direction
	container string
	key       string
	plan      *planner.Plan
	chunks    []*chunk
	logger    *slog.Logger

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelCauseFunc
	stop   []context.CancelFunc

	failOnce sync.Once
	failure  error

	transferred atomic.Int64

	done   chan struct{}
	result *objtypes.ObjectDescriptor
	err    error
}

func newSession(ctx context.Context, dir metrics.Direction, container, key string, deadline time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		id:        uuid.NewString(),
		direction: dir,
		container: container,
		key:       key,
		done:      make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancelCause(ctx)
	if deadline > 0 {
		var stop context.CancelFunc
		s.ctx, stop = context.WithTimeoutCause(s.ctx, deadline, objerrors.ErrDeadlineExceeded)
		s.stop = append(s.stop, stop)
	}
	s.logger = logger.With(
		"session_id", s.id,
		"direction", string(dir),
		"container", container,
		"key", key,
	)
	s.state.Store(int32(objtypes.SessionPlanning))
	return s
}

// setPlan installs the chunk list. It must be called before the session is shared with workers.
func (s *Session) setPlan(p *planner.Plan) {
	s.plan = p
	s.chunks = make([]*chunk, len(p.Chunks))
	for i, d := range p.Chunks {
		s.chunks[i] = &chunk{desc: d}
		s.chunks[i].state.Store(int32(objtypes.ChunkPending))
	}
}

// transition performs a legal state change. It reports false if the session
// is not in from or the change is not allowed.
func (s *Session) transition(from, to objtypes.SessionState) bool {
	legal := false
	for _, next := range transitions[from] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal {
		return false
	}
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.logger.DebugContext(s.ctx, "session state changed", "from", from.String(), "to", to.String())
	return true
}

// fail records the first fatal error and stops the session.
func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.failure = err
		s.cancel(errSessionFailed)
	})
}

// interrupted reports whether the session context has ended.
func (s *Session) interrupted() bool {
	return s.ctx.Err() != nil
}

// outcome decides how an ended session terminates: failed with the recorded
// failure, or aborted with ErrAborted / ErrDeadlineExceeded.
func (s *Session) outcome() (objtypes.SessionState, error) {
	cause := context.Cause(s.ctx)
	switch {
	case errors.Is(cause, errSessionFailed):
		return objtypes.SessionFailed, s.failure
	case errors.Is(cause, objerrors.ErrDeadlineExceeded), errors.Is(cause, objerrors.ErrAborted):
		return objtypes.SessionAborted, cause
	case errors.Is(cause, context.DeadlineExceeded):
		return objtypes.SessionAborted, fmt.Errorf("%w: %w", objerrors.ErrDeadlineExceeded, cause)
	default:
		return objtypes.SessionAborted, fmt.Errorf("%w: %w", objerrors.ErrAborted, cause)
	}
}

// finish moves the session to a terminal state and releases waiters.
func (s *Session) finish(state objtypes.SessionState, result *objtypes.ObjectDescriptor, err error) {
	cur := objtypes.SessionState(s.state.Load())
	if !s.transition(cur, state) {
		if cur.Terminal() {
			return
		}
		s.logger.ErrorContext(s.ctx, "illegal session transition", "from", cur.String(), "to", state.String())
		s.state.Store(int32(objtypes.SessionFailed))
		result, err = nil, fmt.Errorf("illegal session transition %s -> %s: %w", cur, state, err)
	}
	s.result = result
	s.err = err
	s.cancel(context.Canceled)
	for _, stop := range s.stop {
		stop()
	}
	close(s.done)
}

// Handle is the caller's reference to a running transfer.
type Handle struct {
	s *Session
}

// ID returns the session id.
func (h *Handle) ID() string { return h.s.id }

// State returns the current session state.
func (h *Handle) State() objtypes.SessionState {
	return objtypes.SessionState(h.s.state.Load())
}

// Chunks returns a snapshot of every chunk in index order.
func (h *Handle) Chunks() []objtypes.ChunkDescriptor {
	out := make([]objtypes.ChunkDescriptor, len(h.s.chunks))
	for i, c := range h.s.chunks {
		out[i] = c.snapshot()
	}
	return out
}

// Transferred returns the number of bytes committed so far.
func (h *Handle) Transferred() int64 { return h.s.transferred.Load() }

// Done is closed once the session reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.s.done }

// Abort cancels the session. Chunks already in flight finish but their
// results are discarded; no new chunk is dispatched.
func (h *Handle) Abort() {
	h.s.cancel(objerrors.ErrAborted)
}

// Wait blocks until the session ends or ctx is done. Giving up on ctx does not abort the session.
func (h *Handle) Wait(ctx context.Context) (*objtypes.ObjectDescriptor, error) {
	select {
	case <-h.s.done:
		return h.s.result, h.s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
