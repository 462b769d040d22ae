package server

import (
	"net"
	"net/netip"
	"time"

	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/transport"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// handlePacket is the entry point for every datagram read off either
// multicast socket: it enforces the TTL/address sanity checks of RFC 6762
// §11, finds the originating link, decodes the message, and dispatches to
// handleQuery or handleResponse.
func (s *Server) handlePacket(pkt *transport.Packet, fam iface.Family) {
	if pkt.Src.Addr().Is4In6() {
		// RFC 6762 §11: an IPv4-mapped IPv6 source can only arrive via a
		// misconfigured dual-stack socket; never trust it as a genuine
		// link-local peer.
		return
	}
	if s.cfg.CheckResponseTTL && pkt.TTL != 0 && pkt.TTL != protocol.TTLWire {
		s.logger.Debugf("dropping packet from %s with TTL %d (want %d)", pkt.Src, pkt.TTL, protocol.TTLWire)
		return
	}

	l := s.linkFor(pkt.IfIndex, fam)
	if l == nil {
		return
	}

	if l.rateLimiter != nil && !l.rateLimiter.Allow(pkt.Src.Addr().String()) {
		s.logger.Warnf("rate limit: dropping packet from %s on %s", pkt.Src, l.iface.Name)
		return
	}
	if l.sourceFilter != nil && !l.sourceFilter.IsValid(net.IP(pkt.Src.Addr().AsSlice())) {
		s.logger.Debugf("dropping off-subnet packet from %s on %s", pkt.Src, l.iface.Name)
		return
	}

	msg, err := wire.Decode(pkt.Data)
	if err != nil {
		s.logger.Debugf("dropping malformed packet from %s: %v", pkt.Src, err)
		return
	}
	validate := protocol.ValidateMessageFlags
	if msg.Header.IsResponse() {
		validate = protocol.ValidateResponseFlags
	}
	if err := validate(msg.Header.Flags); err != nil {
		s.logger.Debugf("dropping packet from %s with invalid header flags: %v", pkt.Src, err)
		return
	}

	now := time.Now()
	if msg.Header.IsQuery() {
		s.handleQuery(l, msg, pkt, now)
	} else {
		s.handleResponse(l, msg, pkt.Src, now)
	}

	if s.cfg.EnableReflector {
		s.reflect(l, msg)
	}
}

// handleQuery answers an incoming question against this link's locally
// published records: distributed duplicate
// question suppression, known-answer suppression from the query's answer
// section, legacy-unicast/QU bypass of the normal defer window, and
// RFC 6763 §12 dependent-record enrichment (handled in sendRecord/
// withAuxiliary).
func (s *Server) handleQuery(l *link, msg *wire.Message, pkt *transport.Packet, now time.Time) {
	legacyUnicast := pkt.Src.Port() != protocol.Port

	for _, q := range msg.Questions {
		l.queryS.Suppress(q, now)

		matched := l.matchLocal(q)
		if len(matched) == 0 {
			continue
		}

		var querier netip.AddrPort
		if legacyUnicast || q.Unicast {
			querier = pkt.Src
		}

		for _, e := range matched {
			rr := e.RR()
			if querier.IsValid() {
				// Legacy/QU queriers get an immediate, unicast, lower-TTL
				// reply rather than entering the shared defer queue (RFC
				// 6762 §5.4/§6.7).
				if legacyUnicast && rr.TTL > protocol.TTLLegacyUnicastMax {
					rr.TTL = protocol.TTLLegacyUnicastMax
				}
				s.sendRecord(l, rr, querier, msg.Header.ID)
				continue
			}
			l.responseS.Post(rr, now)
		}
	}

	for _, known := range msg.Answers {
		l.responseS.SuppressKnownAnswer(known, now)
	}

	// A simultaneous probe carries the peer's proposed records in the
	// authority section; tie-break them against our own in-flight probes
	// (RFC 6762 §8.2).
	for _, proposed := range msg.Authorities {
		s.checkConflict(l, proposed)
	}
}

// handleResponse folds every answer/additional record of an incoming
// response into this link's cache, tagged with the sender as its origin,
// and checks it against locally published entries for a name conflict
// (RFC 6762 §9).
func (s *Server) handleResponse(l *link, msg *wire.Message, src netip.AddrPort, now time.Time) {
	all := append(append([]wire.RR{}, msg.Answers...), msg.Additionals...)
	for _, rr := range all {
		key := records.NewKey(rr.Name.Presentation(), rr.Class&protocol.ClassMask, rr.Type)
		rec := &records.Record{Key: key, TTL: rr.TTL, CacheFlush: rr.CacheFlush, Data: rr.Data, Origin: src.Addr(), CreatedAt: now}
		l.cache.Update(rec, now)
		l.responseS.ObserveIncomingAnswer(rr, now)
		s.checkConflict(l, rr)
	}
}
