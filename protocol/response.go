package protocol

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Envelope is a single decoded response unit.
type Envelope struct {
	// Command echoes the request's command, or names the event when the
	// unit is an unsolicited notification.
	Command string

	// Result is the device's reported status, one of ResultSuccess or
	// ResultFail. Events leave it empty.
	Result string

	// Message is the envelope's query-string encoded message field,
	// decoded into a flat mapping.
	Message map[string]string

	// Payload is the raw JSON of the optional top-level payload. It is nil
	// when the response carried none.
	Payload []byte
}

// IsEvent reports whether the envelope is an unsolicited notification rather
// than a reply to a request.
func (e *Envelope) IsEvent() bool {
	return strings.HasPrefix(e.Command, EventPrefix)
}

// EventName returns the event name with the event prefix stripped.
func (e *Envelope) EventName() string {
	return strings.TrimPrefix(e.Command, EventPrefix)
}

// PayloadResult parses the payload for querying. The result is the gjson
// zero value when the response carried no payload.
func (e *Envelope) PayloadResult() gjson.Result {
	if e.Payload == nil {
		return gjson.Result{}
	}

	return gjson.ParseBytes(e.Payload)
}

// ErrorOrNil returns a CommandError if the device reported a failure result.
// Otherwise it returns nil.
func (e *Envelope) ErrorOrNil() error {
	if e.Result == "" || e.Result == ResultSuccess {
		return nil
	}

	cerr := &CommandError{Command: e.Command, Text: e.Message["text"]}
	if eid, err := strconv.Atoi(e.Message["eid"]); err == nil {
		cerr.Code = eid
	}

	return cerr
}

// CommandError is a failure result reported by the device for a well-formed
// request.
type CommandError struct {
	Command string
	Code    int
	Text    string
}

func (e *CommandError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("%s failed with code %d", e.Command, e.Code)
	}

	return fmt.Sprintf("%s failed with code %d: %s", e.Command, e.Code, e.Text)
}

// ParseMessage decodes a flat query-string encoded mapping. Duplicate keys
// keep the last occurrence, matching query-string semantics. Components that
// fail to unescape are kept raw rather than dropped.
func ParseMessage(s string) map[string]string {
	message := make(map[string]string)

	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}

		key, value := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key, value = pair[:i], pair[i+1:]
		}

		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}
		if unescaped, err := url.QueryUnescape(value); err == nil {
			value = unescaped
		}

		message[key] = value
	}

	return message
}
