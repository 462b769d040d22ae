//go:build !linux

package iface

import "time"

// newPlatformMonitor on non-Linux platforms is just the polling monitor;
// Darwin and Windows both expose routing-change notifications, but
// neither is reached by golang.org/x/sys in a form this module depends
// on, so polling is the portable fallback.
func newPlatformMonitor() (Monitor, error) {
	return newPollMonitor(1 * time.Second), nil
}
