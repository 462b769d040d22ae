package iface

import (
	"testing"
	"time"
)

func TestPollMonitor_StartAndClose(t *testing.T) {
	m := newPollMonitor(10 * time.Millisecond)

	select {
	case <-m.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one event from the initial scan (loopback, if nothing else)")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}

	// The events channel must be closed, draining immediately.
	for range m.Events() {
	}
}

func TestNewMonitor(t *testing.T) {
	m, err := NewMonitor()
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	defer m.Close()

	select {
	case <-m.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one event")
	}
}
