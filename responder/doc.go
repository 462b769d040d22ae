// Package responder publishes mDNS/DNS-SD records for this host: an
// implicit A/AAAA per interface plus whatever services and records the
// caller registers through an EntryGroup, probed and announced per
// RFC 6762 §8 and withdrawn with a goodbye on Close per RFC 6762 §10.1.
//
// It is a thin facade over internal/server.Server, which owns the
// sockets, per-interface engines, and schedulers.
package responder
