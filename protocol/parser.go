package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrMalformedResponse = errors.New("Response unit is not a valid JSON document")
	ErrUnknownResponse   = errors.New("Unknown response, the unit has no heos envelope")
)

// Framer splits an unbounded inbound byte stream into discrete CRLF
// delimited units and decodes each into an Envelope. It correctly handles
// units split across multiple reads and multiple units arriving in one read.
//
// A Framer is not safe for concurrent use; it is owned by whichever loop
// reads the socket.
type Framer struct {
	buf []byte
}

// Feed appends raw inbound bytes to the receive buffer.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
}

// Next extracts and decodes the first complete unit from the buffer. It
// returns (nil, nil) when the buffer holds no complete unit. A decode error
// consumes the offending unit, so the remaining buffered bytes stay intact
// and later units can still be parsed.
func (f *Framer) Next() (*Envelope, error) {
	for {
		i := bytes.Index(f.buf, Terminal)
		if i < 0 {
			if len(f.buf) == 0 {
				f.buf = nil
			}
			return nil, nil
		}

		unit := f.buf[:i]
		f.buf = f.buf[i+len(Terminal):]

		if len(bytes.TrimSpace(unit)) == 0 {
			continue
		}

		return DecodeEnvelope(unit)
	}
}

// Buffered returns the number of undecoded bytes held by the framer.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// DecodeEnvelope decodes a single delimiter-free response unit.
func DecodeEnvelope(unit []byte) (*Envelope, error) {
	if !gjson.ValidBytes(unit) {
		return nil, fmt.Errorf("failed to decode %q: %w", truncate(unit), ErrMalformedResponse)
	}

	heos := gjson.GetBytes(unit, Scheme)
	if !heos.IsObject() {
		return nil, fmt.Errorf("failed to decode %q: %w", truncate(unit), ErrUnknownResponse)
	}

	env := &Envelope{
		Command: heos.Get("command").String(),
		Result:  heos.Get("result").String(),
		Message: ParseMessage(heos.Get("message").String()),
	}

	if payload := gjson.GetBytes(unit, "payload"); payload.Exists() {
		env.Payload = []byte(payload.Raw)
	}

	return env, nil
}

func truncate(unit []byte) []byte {
	const max = 256

	if len(unit) <= max {
		return unit
	}

	return unit[:max]
}
