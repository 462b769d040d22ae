package server

import (
	"fmt"
	"io"

	"github.com/lanbeacon/mdnsd/internal/cache"
)

// Dump writes a zone-file-like textual dump of every link's published
// records and cache contents to w, for debugging: one "interface"
// header per link, one line per published record, then one per cache
// entry.
func (s *Server) Dump(w io.Writer) error {
	for _, l := range s.allLinks() {
		if _, err := fmt.Fprintf(w, ";; interface %s (%s) index=%d\n", l.iface.Name, l.key.family, l.key.index); err != nil {
			return err
		}

		for _, g := range l.groupsSnapshot() {
			for _, e := range g.Entries() {
				if _, err := fmt.Fprintf(w, "%-40s %5d IN %-6s %s ; %s\n",
					e.Name.Presentation(), e.Record.TTL, e.Record.Key.Type, e.Record.Data.String(), e.State); err != nil {
					return err
				}
			}
		}

		var dumpErr error
		l.cache.Walk(func(e *cache.Entry) {
			if dumpErr != nil {
				return
			}
			_, dumpErr = fmt.Fprintf(w, "%-40s %5d IN %-6s %s ; cache %s\n",
				e.Record.Key.Name, e.Record.TTL, e.Record.Key.Type, e.Record.Data.String(), e.State)
		})
		if dumpErr != nil {
			return dumpErr
		}

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}
