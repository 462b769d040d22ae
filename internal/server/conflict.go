package server

import (
	"time"

	"github.com/lanbeacon/mdnsd/internal/announce"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// checkConflict compares an incoming record against every locally
// published entry of the same name/type on l, applying RFC 6762 §8.2's
// (during probing) and §9's (once established) tie-break and defense
// rules via internal/wire.CompareRR's comparator.
func (s *Server) checkConflict(l *link, rr wire.RR) {
	if rr.IsGoodbye() {
		// A peer withdrawing its record is the opposite of a claim on
		// the name; nothing to defend against.
		return
	}
	for _, g := range l.groupsSnapshot() {
		for _, e := range g.Entries() {
			if !e.Name.EqualFold(rr.Name) || e.Record.Key.Type != rr.Type {
				continue
			}
			cmp, err := wire.CompareRR(e.RR(), rr)
			if err != nil || cmp == 0 {
				// Identical rdata (or incomparable types): nothing to
				// defend, the incoming record simply confirms ours.
				continue
			}

			switch e.State {
			case announce.StateProbing, announce.StateWaiting:
				if cmp < 0 {
					// Ours loses the tie-break (RFC 6762 §8.2): the group
					// enters COLLISION at once and its conflict hook
					// decides whether to retry under another name.
					g.HandleConflict(e)
				}
			case announce.StateAnnouncing, announce.StateEstablished:
				if !rr.CacheFlush {
					continue
				}
				if cmp < 0 {
					g.HandleConflict(e)
				} else {
					// Ours wins: defend it with an immediate re-announcement
					// (RFC 6762 §9).
					l.responseS.ForceFlush(e.RR(), time.Now())
				}
			}
		}
	}
}
