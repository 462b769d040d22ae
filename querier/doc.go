// Package querier discovers and resolves mDNS/DNS-SD services: record,
// domain, service-type, and service browsers that replay the cache and
// then track further arrivals/removals, plus host-name, address, and
// service resolvers that join SRV+TXT+address into one result (RFC 6763
// §4/§11). Browsers are callback-driven and long-lived, because mDNS
// services come and go continuously and a caller browsing a network
// wants to hear about both.
//
// A querier.Client browses against the cache and schedulers of an
// already-running *responder.Server (see New), rather than opening a
// second socket, so a process that both publishes and browses shares one
// engine.
package querier
