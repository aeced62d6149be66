package protocol

// This package implements parsing and serialising of the wire protocol that
// HEOS-compatible audio devices speak on TCP port 1255.
//
// - `Command`  - An instruction sent to the device.
// - `Envelope` - A decoded response document from the device.
// - `Event`    - An unsolicited notification pushed by the device. Events are
//                regular Envelopes whose command carries the `event/` prefix.
//
// === General syntax
//
// Requests are a single CRLF terminated line of the form
//
//   ```
//     heos://<command>?<param1>=<value1>&<param2>=<value2>\r\n
//   ```
//
// Parameter values are percent-encoded. The query string is omitted entirely
// for commands that take no parameters.
//
// Responses are a single CRLF terminated JSON document with a nested `heos`
// object plus an optional top-level `payload`:
//
//   ```
//     {"heos": {"command": "player/get_volume",
//               "result": "success",
//               "message": "pid=1&level=50"},
//      "payload": ...}\r\n
//   ```
//
// The `message` field is itself a flat query-string encoded mapping.
//
// The protocol carries no request/response correlation identifier. Replies
// arrive in strict submission order, so a client must keep at most one
// request outstanding at a time. Events can interleave with replies at any
// point, but a single response document is atomic: you will never receive
// half of a reply, then an entire event, then the rest of the reply.
