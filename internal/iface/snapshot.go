package iface

import "net"

// Snapshot enumerates every network interface on the host and returns one
// Interface per (link, family) pair, for both families — the picture
// internal/server needs after a Monitor event to decide which links
// should be joined or dropped. Monitor tells the server *that* something
// changed; Snapshot is how it finds out *what* the new state is.
func Snapshot() ([]*Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []*Interface
	for _, ifi := range ifs {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}

		for _, fam := range []Family{FamilyIPv4, FamilyIPv6} {
			entry := &Interface{
				Index:  ifi.Index,
				Name:   ifi.Name,
				Flags:  ifi.Flags,
				MTU:    ifi.MTU,
				Family: fam,
			}
			for _, a := range addrs {
				ipnet, ok := a.(*net.IPNet)
				if !ok {
					continue
				}
				addr, ok := prefixFromIPNet(ipnet)
				if !ok {
					continue
				}
				if (fam == FamilyIPv4) != addr.Addr().Is4() {
					continue
				}
				entry.Addrs = append(entry.Addrs, addr)
			}
			out = append(out, entry)
		}
	}
	return out, nil
}
