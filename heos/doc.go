package heos

// This package implements a persistent-connection client for HEOS-compatible
// audio devices.
//
// A Conn owns a single TCP connection to one device. All requests funnel
// through Submit, which serialises them so at most one is awaiting a reply at
// any time; the protocol has no correlation identifiers, so strict FIFO
// ordering is the only way to match replies to requests. Unsolicited change
// events are demultiplexed off the same stream and fanned out to subscribers
// registered with On.
//
// Connect, Disconnect and Reconnect are idempotent: concurrent callers of an
// in-flight transition share its outcome rather than racing a second one.
// While connected, a watchdog probes the device every ten seconds and drives
// an automatic reconnect cycle when a probe fails.
//
// The per-domain convenience methods (player, group, system, browse) are thin
// builders over Submit.
