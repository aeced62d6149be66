package heos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luma/maestro/protocol"
)

type commandResult struct {
	env *protocol.Envelope
	err error
}

// pendingCommand is one outstanding request. It is settled exactly once, by
// a matching reply, a send-level failure, a timeout, or the socket closing.
type pendingCommand struct {
	command    protocol.Command
	params     map[string]string
	token      uint64
	enqueuedAt time.Time

	resultChan chan commandResult
}

// deliver settles the command. The channel is buffered and only the first
// delivery is kept, so a command that was already abandoned can be settled
// again harmlessly.
func (p *pendingCommand) deliver(env *protocol.Envelope, err error) {
	select {
	case p.resultChan <- commandResult{env: env, err: err}:
	default:
	}
}

// dispatchQueue serialises outbound commands so at most one is awaiting a
// reply at any time. The `current` slot is the single piece of cross
// component state shared with the read loop: the read loop completes it, the
// queue refills it.
type dispatchQueue struct {
	write   func(data []byte) error
	timeout time.Duration
	log     *zap.Logger

	mu        sync.Mutex
	pending   []*pendingCommand
	current   *pendingCommand
	lastToken uint64
}

func newDispatchQueue(timeout time.Duration, write func(data []byte) error, log *zap.Logger) *dispatchQueue {
	return &dispatchQueue{
		write:   write,
		timeout: timeout,
		log:     log,
	}
}

// Submit enqueues a command and blocks until it settles: a routed reply, a
// send-level failure, the timeout, or caller cancellation, whichever comes
// first.
func (q *dispatchQueue) Submit(ctx context.Context, command protocol.Command, params map[string]string) (*protocol.Envelope, error) {
	pc := &pendingCommand{
		command:    command,
		params:     params,
		enqueuedAt: time.Now(),
		resultChan: make(chan commandResult, 1),
	}

	q.mu.Lock()
	q.lastToken++
	pc.token = q.lastToken
	q.pending = append(q.pending, pc)
	q.mu.Unlock()

	q.advance()

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case res := <-pc.resultChan:
		return res.env, res.err

	case <-timer.C:
		q.abandon(pc)
		return nil, fmt.Errorf("%s: %w", command, ErrTimeout)

	case <-ctx.Done():
		q.abandon(pc)
		return nil, ctx.Err()
	}
}

// advance pops the head of the queue into the current slot and writes it to
// the socket. A synchronous write failure rejects that command and moves on
// to the next, so a dead socket fails the whole backlog fast instead of
// stalling it.
func (q *dispatchQueue) advance() {
	for {
		q.mu.Lock()
		if q.current != nil || len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}

		pc := q.pending[0]
		q.pending = q.pending[1:]
		q.current = pc
		q.mu.Unlock()

		err := q.write(protocol.BuildRequest(pc.command, pc.params))
		if err == nil {
			return
		}

		q.mu.Lock()
		if q.current == pc {
			q.current = nil
		}
		q.mu.Unlock()

		q.log.Debug("Rejecting command, write failed",
			zap.String("command", string(pc.command)),
			zap.Error(err))
		pc.deliver(nil, err)
	}
}

// completeReply settles the current command with a routed reply. The reply's
// command name is validated against the awaited command so a late reply to a
// timed-out command cannot complete a later one. A reply with no command
// awaiting it is dropped.
func (q *dispatchQueue) completeReply(env *protocol.Envelope) {
	q.mu.Lock()
	pc := q.current

	if pc == nil {
		q.mu.Unlock()
		q.log.Debug("Dropping reply, no command is awaiting one",
			zap.String("command", env.Command))
		return
	}

	if env.Command != "" && env.Command != string(pc.command) {
		q.mu.Unlock()
		q.log.Warn("Dropping reply that does not match the awaited command",
			zap.String("expected", string(pc.command)),
			zap.String("received", env.Command))
		return
	}

	q.current = nil
	q.mu.Unlock()

	pc.deliver(env, env.ErrorOrNil())
	q.advance()
}

// rejectCurrent settles the current command with an error that could not be
// attributed to a decoded reply, such as an unrecognised response unit.
func (q *dispatchQueue) rejectCurrent(err error) {
	q.mu.Lock()
	pc := q.current
	q.current = nil
	q.mu.Unlock()

	if pc == nil {
		q.log.Debug("Dropping error, no command is awaiting a reply", zap.Error(err))
		return
	}

	pc.deliver(nil, err)
	q.advance()
}

// abandon detaches a command whose caller stopped waiting. If it held the
// current slot the slot is freed so the queue keeps making progress; a reply
// that still arrives for it is dropped by completeReply's validation.
func (q *dispatchQueue) abandon(pc *pendingCommand) {
	q.mu.Lock()

	if q.current != nil && q.current.token == pc.token {
		q.current = nil
		q.mu.Unlock()
		q.advance()
		return
	}

	for i, queued := range q.pending {
		if queued.token == pc.token {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
}

// failAll rejects the current command and the whole backlog. Called when the
// socket closes underneath the queue.
func (q *dispatchQueue) failAll(err error) {
	q.mu.Lock()
	failed := make([]*pendingCommand, 0, len(q.pending)+1)
	if q.current != nil {
		failed = append(failed, q.current)
		q.current = nil
	}
	failed = append(failed, q.pending...)
	q.pending = nil
	q.mu.Unlock()

	for _, pc := range failed {
		pc.deliver(nil, err)
	}
}
