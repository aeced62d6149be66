package heos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/maestro/protocol"
)

// echoWire fakes the device side of the dispatch queue: it records every
// written request and can reply to the command it carries.
type echoWire struct {
	mu       sync.Mutex
	writes   []protocol.Command
	inFlight int
	maxSeen  int
	failWith error
}

func (w *echoWire) write(data []byte) error {
	cmd := commandOf(data)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.failWith != nil {
		return w.failWith
	}

	w.writes = append(w.writes, cmd)
	w.inFlight++
	if w.inFlight > w.maxSeen {
		w.maxSeen = w.inFlight
	}

	return nil
}

func (w *echoWire) ackOne(q *dispatchQueue) bool {
	w.mu.Lock()
	if w.inFlight == 0 {
		w.mu.Unlock()
		return false
	}
	w.inFlight--
	cmd := w.writes[len(w.writes)-1-w.inFlight]
	w.mu.Unlock()

	q.completeReply(&protocol.Envelope{
		Command: string(cmd),
		Result:  protocol.ResultSuccess,
		Message: map[string]string{},
	})

	return true
}

func (w *echoWire) written() []protocol.Command {
	w.mu.Lock()
	defer w.mu.Unlock()

	writes := make([]protocol.Command, len(w.writes))
	copy(writes, w.writes)

	return writes
}

func commandOf(data []byte) protocol.Command {
	line := strings.TrimSuffix(string(data), "\r\n")
	line = strings.TrimPrefix(line, protocol.Scheme+"://")
	if i := strings.IndexByte(line, '?'); i >= 0 {
		line = line[:i]
	}

	return protocol.Command(line)
}

var _ = Describe("dispatchQueue", func() {
	newQueue := func(timeout time.Duration, wire *echoWire) *dispatchQueue {
		return newDispatchQueue(timeout, wire.write, zap.NewNop())
	}

	It("resolves a command with the reply routed to it", func() {
		wire := &echoWire{}
		q := newQueue(time.Second, wire)

		go func() {
			defer GinkgoRecover()
			Eventually(func() bool { return wire.ackOne(q) }).Should(BeTrue())
		}()

		env, err := q.Submit(context.Background(), protocol.GetVolume, map[string]string{"pid": "1"})
		Expect(err).To(Succeed())
		Expect(env.Command).To(Equal(string(protocol.GetVolume)))
	})

	It("writes every submission exactly once, one at a time, and correlates each caller's reply", func() {
		wire := &echoWire{}
		q := newQueue(5*time.Second, wire)

		const n = 10

		// Ack replies as the writes land.
		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			for acked := 0; acked < n; {
				if wire.ackOne(q) {
					acked++
				} else {
					time.Sleep(time.Millisecond)
				}
			}
		}()

		var callers sync.WaitGroup
		for i := 0; i < n; i++ {
			callers.Add(1)
			command := protocol.Command(fmt.Sprintf("player/cmd_%d", i))

			go func() {
				defer GinkgoRecover()
				defer callers.Done()

				env, err := q.Submit(context.Background(), command, nil)
				Expect(err).To(Succeed())
				Expect(env.Command).To(Equal(string(command)))
			}()
		}

		callers.Wait()
		<-done

		Expect(wire.written()).To(HaveLen(n))
		Expect(wire.maxSeen).To(Equal(1), "more than one command was awaiting a reply")
	})

	It("settles as a timeout when no reply arrives, and keeps making progress", func() {
		wire := &echoWire{}
		q := newQueue(100*time.Millisecond, wire)

		_, err := q.Submit(context.Background(), protocol.GetVolume, nil)
		Expect(errors.Is(err, ErrTimeout)).To(BeTrue())

		go func() {
			defer GinkgoRecover()
			// Skip the abandoned command's slot, then ack the new one.
			Eventually(func() []protocol.Command { return wire.written() }).Should(HaveLen(2))
			q.completeReply(&protocol.Envelope{
				Command: string(protocol.GetMute),
				Result:  protocol.ResultSuccess,
			})
		}()

		env, err := q.Submit(context.Background(), protocol.GetMute, nil)
		Expect(err).To(Succeed())
		Expect(env.Command).To(Equal(string(protocol.GetMute)))
	})

	It("drops a late reply to an abandoned command instead of completing the next one", func() {
		wire := &echoWire{}
		q := newQueue(time.Second, wire)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := q.Submit(ctx, protocol.GetVolume, nil)
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

		resultChan := make(chan error, 1)
		go func() {
			_, serr := q.Submit(context.Background(), protocol.GetMute, nil)
			resultChan <- serr
		}()

		Eventually(func() []protocol.Command { return wire.written() }).Should(HaveLen(2))

		// The abandoned command's reply finally shows up. It must not be
		// mistaken for the mute reply.
		q.completeReply(&protocol.Envelope{
			Command: string(protocol.GetVolume),
			Result:  protocol.ResultSuccess,
		})
		Consistently(resultChan).ShouldNot(Receive())

		q.completeReply(&protocol.Envelope{
			Command: string(protocol.GetMute),
			Result:  protocol.ResultSuccess,
		})
		Eventually(resultChan).Should(Receive(Succeed()))
	})

	It("rejects a command immediately when the write fails, without blocking later submissions", func() {
		wire := &echoWire{failWith: ErrNotConnected}
		q := newQueue(5*time.Second, wire)

		started := time.Now()
		_, err := q.Submit(context.Background(), protocol.GetVolume, nil)
		Expect(errors.Is(err, ErrNotConnected)).To(BeTrue())
		Expect(time.Since(started)).To(BeNumerically("<", time.Second))

		// The socket comes back; the queue must not be wedged.
		wire.mu.Lock()
		wire.failWith = nil
		wire.mu.Unlock()

		go func() {
			defer GinkgoRecover()
			Eventually(func() bool { return wire.ackOne(q) }).Should(BeTrue())
		}()

		_, err = q.Submit(context.Background(), protocol.GetMute, nil)
		Expect(err).To(Succeed())
	})

	It("rejects the device's failure results as CommandErrors", func() {
		wire := &echoWire{}
		q := newQueue(time.Second, wire)

		go func() {
			defer GinkgoRecover()
			Eventually(func() []protocol.Command { return wire.written() }).Should(HaveLen(1))
			q.completeReply(&protocol.Envelope{
				Command: string(protocol.SetVolume),
				Result:  protocol.ResultFail,
				Message: map[string]string{"eid": "9", "text": "Out of range"},
			})
		}()

		_, err := q.Submit(context.Background(), protocol.SetVolume, map[string]string{"pid": "1", "level": "500"})

		cerr := new(protocol.CommandError)
		Expect(errors.As(err, &cerr)).To(BeTrue())
		Expect(cerr.Code).To(Equal(9))
	})

	It("drops a reply when no command is awaiting one", func() {
		wire := &echoWire{}
		q := newQueue(time.Second, wire)

		Expect(func() {
			q.completeReply(&protocol.Envelope{
				Command: string(protocol.GetVolume),
				Result:  protocol.ResultSuccess,
			})
		}).NotTo(Panic())
	})

	It("fails the current command and the whole backlog when the socket closes", func() {
		wire := &echoWire{}
		q := newQueue(5*time.Second, wire)

		results := make(chan error, 3)
		for i := 0; i < 3; i++ {
			go func() {
				_, err := q.Submit(context.Background(), protocol.GetPlayers, nil)
				results <- err
			}()
		}

		Eventually(func() []protocol.Command { return wire.written() }).ShouldNot(BeEmpty())

		q.failAll(ErrClosed)

		for i := 0; i < 3; i++ {
			var err error
			Eventually(results).Should(Receive(&err))
			Expect(errors.Is(err, ErrClosed)).To(BeTrue())
		}
	})

})
