package contract

import (
	"testing"

	"github.com/lanbeacon/mdnsd/internal/names"
)

// TestRFC6763_ServiceInstanceNameShape verifies RFC 6763 §4.1's
// <Instance>.<Service>.<Domain> structure, with the instance label
// escaped so embedded dots cannot masquerade as label boundaries.
func TestRFC6763_ServiceInstanceNameShape(t *testing.T) {
	got := names.ComposeServiceName("My Printer", "_ipp._tcp", "local")
	if got != "My Printer._ipp._tcp.local" {
		t.Errorf("ComposeServiceName = %q", got)
	}

	dotted := names.ComposeServiceName("web.site", "_http._tcp", "local")
	if dotted != `web\.site._http._tcp.local` {
		t.Errorf("dotted instance = %q, want escaped dot", dotted)
	}
	labels := names.SplitLabels(dotted)
	if len(labels) != 4 {
		t.Errorf("escaped instance name splits into %d labels, want 4: %v", len(labels), labels)
	}
}

// TestRFC6763_MetaQueryName verifies the §9 service-type enumeration
// owner name.
func TestRFC6763_MetaQueryName(t *testing.T) {
	if got := names.MetaQueryName("local"); got != "_services._dns-sd._udp.local" {
		t.Errorf("MetaQueryName = %q", got)
	}
}

// TestRFC6763_DomainEnumerationNames verifies the §11 browse/register
// domain enumeration owner names.
func TestRFC6763_DomainEnumerationNames(t *testing.T) {
	cases := map[names.DomainEnumeration]string{
		names.DomainBrowse:          "b._dns-sd._udp.local",
		names.DomainBrowseDefault:   "db._dns-sd._udp.local",
		names.DomainRegister:        "r._dns-sd._udp.local",
		names.DomainRegisterDefault: "dr._dns-sd._udp.local",
		names.DomainLegacyBrowse:    "lb._dns-sd._udp.local",
	}
	for kind, want := range cases {
		if got := names.MetaDomainQueryName(kind, "local"); got != want {
			t.Errorf("MetaDomainQueryName(%v) = %q, want %q", kind, got, want)
		}
	}
}

// TestRFC6763_ServiceTypeValidation verifies §7's two-label _service._proto
// constraint.
func TestRFC6763_ServiceTypeValidation(t *testing.T) {
	if !names.IsValidServiceType("_ipp._tcp") {
		t.Error("_ipp._tcp rejected")
	}
	if names.IsValidServiceType("_ipp._tcp.local") {
		t.Error("service type with domain accepted")
	}
	if names.IsValidServiceType("ipp._tcp") {
		t.Error("service label without underscore accepted")
	}
}
