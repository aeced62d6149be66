package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/maestro/protocol"
)

const volumeReply = `{"heos": {"command": "player/get_volume", "result": "success", "message": "pid=1&level=50"}}`

var _ = Describe("Parsing", func() {
	Describe("Framer", func() {
		It("returns nothing while the buffer holds no complete unit", func() {
			f := &protocol.Framer{}
			f.Feed([]byte(`{"heos": {"command": "pl`))

			env, err := f.Next()
			Expect(err).To(Succeed())
			Expect(env).To(BeNil())
		})

		It("decodes a complete unit", func() {
			f := &protocol.Framer{}
			f.Feed([]byte(volumeReply + "\r\n"))

			env, err := f.Next()
			Expect(err).To(Succeed())
			Expect(env.Command).To(Equal("player/get_volume"))
			Expect(env.Result).To(Equal(protocol.ResultSuccess))
			Expect(env.Message).To(Equal(map[string]string{"pid": "1", "level": "50"}))
			Expect(env.Payload).To(BeNil())
		})

		It("produces the same envelopes regardless of how the stream is chunked", func() {
			raw := []byte(volumeReply + "\r\n" +
				`{"heos": {"command": "event/player_state_changed", "message": "pid=1&state=play"}}` + "\r\n" +
				`{"heos": {"command": "player/get_mute", "result": "success", "message": "pid=1&state=off"}}` + "\r\n")

			drain := func(f *protocol.Framer) []string {
				var commands []string
				for {
					env, err := f.Next()
					Expect(err).To(Succeed())
					if env == nil {
						return commands
					}
					commands = append(commands, env.Command)
				}
			}

			whole := &protocol.Framer{}
			whole.Feed(raw)
			expected := drain(whole)
			Expect(expected).To(HaveLen(3))

			for _, chunkSize := range []int{1, 2, 3, 7, 64} {
				chunked := &protocol.Framer{}
				var commands []string

				for start := 0; start < len(raw); start += chunkSize {
					end := start + chunkSize
					if end > len(raw) {
						end = len(raw)
					}
					chunked.Feed(raw[start:end])
					commands = append(commands, drain(chunked)...)
				}

				Expect(commands).To(Equal(expected))
			}
		})

		It("decodes multiple units arriving in one read", func() {
			f := &protocol.Framer{}
			f.Feed([]byte(volumeReply + "\r\n" + volumeReply + "\r\n"))

			for i := 0; i < 2; i++ {
				env, err := f.Next()
				Expect(err).To(Succeed())
				Expect(env.Command).To(Equal("player/get_volume"))
			}

			env, err := f.Next()
			Expect(err).To(Succeed())
			Expect(env).To(BeNil())
		})

		It("skips empty units", func() {
			f := &protocol.Framer{}
			f.Feed([]byte("\r\n\r\n" + volumeReply + "\r\n"))

			env, err := f.Next()
			Expect(err).To(Succeed())
			Expect(env.Command).To(Equal("player/get_volume"))
		})

		It("returns an error for a malformed unit without corrupting later units", func() {
			f := &protocol.Framer{}
			f.Feed([]byte("this is not json\r\n" + volumeReply + "\r\n"))

			_, err := f.Next()
			Expect(errors.Is(err, protocol.ErrMalformedResponse)).To(BeTrue())

			env, err := f.Next()
			Expect(err).To(Succeed())
			Expect(env.Command).To(Equal("player/get_volume"))
		})

		It("returns an error for a unit with no heos envelope", func() {
			f := &protocol.Framer{}
			f.Feed([]byte(`{"payload": [1, 2, 3]}` + "\r\n"))

			_, err := f.Next()
			Expect(errors.Is(err, protocol.ErrUnknownResponse)).To(BeTrue())
		})
	})

	Describe("DecodeEnvelope()", func() {
		It("passes the payload through as raw JSON", func() {
			unit := []byte(`{"heos": {"command": "player/get_players", "result": "success", "message": ""},` +
				` "payload": [{"name": "Den", "pid": 5}]}`)

			env, err := protocol.DecodeEnvelope(unit)
			Expect(err).To(Succeed())
			Expect(string(env.Payload)).To(Equal(`[{"name": "Den", "pid": 5}]`))
			Expect(env.PayloadResult().Get("0.name").String()).To(Equal("Den"))
		})

		It("recognises events by their command prefix", func() {
			unit := []byte(`{"heos": {"command": "event/player_volume_changed", "message": "pid=1&level=22&mute=off"}}`)

			env, err := protocol.DecodeEnvelope(unit)
			Expect(err).To(Succeed())
			Expect(env.IsEvent()).To(BeTrue())
			Expect(env.EventName()).To(Equal("player_volume_changed"))
			Expect(env.Message["level"]).To(Equal("22"))
		})

		It("does not mistake replies for events", func() {
			env, err := protocol.DecodeEnvelope([]byte(volumeReply))
			Expect(err).To(Succeed())
			Expect(env.IsEvent()).To(BeFalse())
		})
	})

	Describe("Envelope.ErrorOrNil()", func() {
		It("returns nil for a success result", func() {
			env, err := protocol.DecodeEnvelope([]byte(volumeReply))
			Expect(err).To(Succeed())
			Expect(env.ErrorOrNil()).To(Succeed())
		})

		It("returns a CommandError carrying the device's error code and text", func() {
			unit := []byte(`{"heos": {"command": "player/set_volume", "result": "fail", "message": "eid=9&text=Out%20of%20range"}}`)

			env, err := protocol.DecodeEnvelope(unit)
			Expect(err).To(Succeed())

			cerr := new(protocol.CommandError)
			Expect(errors.As(env.ErrorOrNil(), &cerr)).To(BeTrue())
			Expect(cerr.Code).To(Equal(9))
			Expect(cerr.Text).To(Equal("Out of range"))
		})
	})

	Describe("ParseMessage()", func() {
		It("decodes key=value pairs", func() {
			Expect(protocol.ParseMessage("pid=1&level=50")).To(Equal(map[string]string{
				"pid":   "1",
				"level": "50",
			}))
		})

		It("keeps the last occurrence of duplicate keys", func() {
			Expect(protocol.ParseMessage("pid=1&pid=2")).To(Equal(map[string]string{"pid": "2"}))
		})

		It("unescapes percent-encoded components", func() {
			Expect(protocol.ParseMessage("text=Out%20of%20range")).To(Equal(map[string]string{
				"text": "Out of range",
			}))
		})

		It("tolerates bare keys with no value", func() {
			Expect(protocol.ParseMessage("signed_out")).To(Equal(map[string]string{"signed_out": ""}))
		})

		It("decodes an empty message to an empty mapping", func() {
			Expect(protocol.ParseMessage("")).To(BeEmpty())
		})
	})
})
