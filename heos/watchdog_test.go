package heos_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/maestro/heos"
	"github.com/luma/maestro/internal/devicetest"
	"github.com/luma/maestro/protocol"
)

var _ = Describe("watchdog", func() {
	countEvents := func(c *heos.Conn) func(string) func() int {
		var mu sync.Mutex
		counts := map[string]int{}

		c.On(heos.AnyEvent, func(event string, message map[string]string) {
			mu.Lock()
			defer mu.Unlock()
			counts[event]++
		})

		return func(event string) func() int {
			return func() int {
				mu.Lock()
				defer mu.Unlock()
				return counts[event]
			}
		}
	}

	It("recovers a failing device by reconnecting, surfacing the outage only as events", func() {
		device := makeDevice()
		defer device.Close()

		// The liveness probe fails until the first reconnect completes.
		var mu sync.Mutex
		healthy := false
		device.Handle(protocol.GetPlayers, func(req devicetest.Request) []byte {
			mu.Lock()
			defer mu.Unlock()
			if !healthy {
				return devicetest.Failure(req.Command, 12, "System busy")
			}
			return devicetest.Success(req.Command, "", []map[string]interface{}{})
		})

		c := heos.New(heos.Options{
			Host:             device.Host(),
			Port:             device.Port(),
			CommandTimeout:   300 * time.Millisecond,
			WatchdogInterval: 50 * time.Millisecond,
		})
		defer c.Close()

		count := countEvents(c)
		reconnected := count(heos.EventReconnected)
		c.On(heos.EventReconnecting, func(event string, message map[string]string) {
			mu.Lock()
			defer mu.Unlock()
			healthy = true
		})

		Expect(c.Connect(context.Background())).To(Succeed())

		Eventually(count(heos.EventWatchdogError), "5s").Should(BeNumerically(">=", 1))
		Eventually(reconnected, "5s").Should(BeNumerically(">=", 1))

		Eventually(c.State, "5s").Should(Equal(heos.Connected))
		Expect(device.Accepted()).To(BeNumerically(">=", 2))
	})

	It("shares one reconnect cycle between concurrent callers", func() {
		device := makeDevice()
		defer device.Close()

		// Slow the handshake down so the reconnects overlap.
		device.Handle(protocol.RegisterForChangeEvents, func(req devicetest.Request) []byte {
			time.Sleep(100 * time.Millisecond)
			return devicetest.Success(req.Command, "enable=on", nil)
		})

		c := makeConn(device)
		defer c.Close()

		count := countEvents(c)
		reconnecting := count(heos.EventReconnecting)

		Expect(c.Connect(context.Background())).To(Succeed())

		var callers sync.WaitGroup
		for i := 0; i < 2; i++ {
			callers.Add(1)
			go func() {
				defer GinkgoRecover()
				defer callers.Done()
				Expect(c.Reconnect(context.Background())).To(Succeed())
			}()
		}
		callers.Wait()

		Eventually(reconnecting).Should(Equal(1))
		Consistently(reconnecting).Should(Equal(1))
		Expect(c.State()).To(Equal(heos.Connected))
	})
})
