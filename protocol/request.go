package protocol

import (
	"bytes"
	"net/url"
	"sort"
	"strings"
)

var (
	// Terminal ends every request and response unit.
	Terminal = []byte("\r\n")
)

// BuildRequest encodes a command and its parameters as a single CRLF
// terminated request line. Parameters are emitted in sorted key order so
// encoding is deterministic.
func BuildRequest(cmd Command, params map[string]string) []byte {
	var b bytes.Buffer

	b.WriteString(Scheme)
	b.WriteString("://")
	b.WriteString(string(cmd))

	if len(params) > 0 {
		b.WriteByte('?')
		b.WriteString(encodeParams(params))
	}

	b.Write(Terminal)

	return b.Bytes()
}

func encodeParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(params[k]))
	}

	return b.String()
}

// escape percent-encodes a query component. Devices do not understand '+' as
// an escaped space, so spaces must be emitted as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
