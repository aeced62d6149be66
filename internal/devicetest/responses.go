package devicetest

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/luma/maestro/protocol"
)

// Success composes a CRLF terminated success reply for cmd, with an optional
// payload.
func Success(cmd protocol.Command, message string, payload interface{}) []byte {
	doc := envelope(string(cmd), protocol.ResultSuccess, message)

	if payload != nil {
		doc, _ = sjson.SetBytes(doc, "payload", payload)
	}

	return terminate(doc)
}

// Failure composes a CRLF terminated failure reply carrying an error code
// and text in the message field.
func Failure(cmd protocol.Command, eid int, text string) []byte {
	message := fmt.Sprintf("eid=%d&text=%s", eid, url.QueryEscape(text))
	return terminate(envelope(string(cmd), protocol.ResultFail, message))
}

// Event composes a CRLF terminated unsolicited notification.
func Event(name string, message map[string]string) []byte {
	return terminate(envelope(protocol.EventPrefix+name, "", encodeMessage(message)))
}

func envelope(command, result, message string) []byte {
	doc, _ := sjson.SetBytes([]byte(`{}`), "heos.command", command)
	if result != "" {
		doc, _ = sjson.SetBytes(doc, "heos.result", result)
	}
	doc, _ = sjson.SetBytes(doc, "heos.message", message)

	return doc
}

func encodeMessage(message map[string]string) string {
	keys := make([]string, 0, len(message))
	for k := range message {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+url.QueryEscape(message[k]))
	}

	return strings.Join(pairs, "&")
}

func terminate(doc []byte) []byte {
	return append(doc, protocol.Terminal...)
}
