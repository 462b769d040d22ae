package errors

import "fmt"

// Kind identifies the class of failure a Kinded error represents.
// Callers that need to branch on failure class (rather than match a
// concrete Go type) can type assert to Kinded and switch on Kind()
// instead of chaining errors.As calls.
type Kind string

const (
	KindBadState         Kind = "bad_state"
	KindInvalidHostName  Kind = "invalid_host_name"
	KindInvalidDomainName Kind = "invalid_domain_name"
	KindInvalidServiceName Kind = "invalid_service_name"
	KindInvalidServiceType Kind = "invalid_service_type"
	KindInvalidPort      Kind = "invalid_port"
	KindInvalidAddress   Kind = "invalid_address"
	KindInvalidTTL       Kind = "invalid_ttl"
	KindInvalidKey       Kind = "invalid_key"
	KindInvalidRecord    Kind = "invalid_record"
	KindInvalidFlags     Kind = "invalid_flags"
	KindInvalidInterface Kind = "invalid_interface"
	KindInvalidProtocol  Kind = "invalid_protocol"
	KindLocalCollision   Kind = "local_collision"
	KindRecordExists     Kind = "record_exists"
	KindOSError          Kind = "os_error"
	KindNoNetwork        Kind = "no_network"
	KindTooManyClients   Kind = "too_many_clients"
	KindTooManyObjects   Kind = "too_many_objects"
	KindTooManyEntries   Kind = "too_many_entries"
	KindTimeout          Kind = "timeout"
	KindNotSupported     Kind = "not_supported"
)

// Kinded is implemented by every error type in this package so that callers
// can dispatch on failure class without a chain of errors.As assertions.
type Kinded interface {
	error
	Kind() Kind
}

// KindError is a single struct parameterized by Kind, covering every
// error kind that doesn't need its own bespoke field set beyond the
// offending value and an optional cause; one tagged struct beats twenty
// near-identical ones.
type KindError struct {
	K       Kind
	Subject string // name/value/field the error concerns, e.g. the offending host name
	Message string
	Err     error
}

func (e *KindError) Kind() Kind { return e.K }

func (e *KindError) Error() string {
	switch {
	case e.Subject != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (%v): %s", e.K, e.Subject, e.Err, e.Message)
	case e.Subject != "":
		return fmt.Sprintf("%s: %s: %s", e.K, e.Subject, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %s", e.K, e.Err, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.K, e.Message)
	}
}

func (e *KindError) Unwrap() error { return e.Err }

func newKind(k Kind, subject, message string, err error) *KindError {
	return &KindError{K: k, Subject: subject, Message: message, Err: err}
}

func BadState(message string) error { return newKind(KindBadState, "", message, nil) }

func InvalidHostName(name string) error {
	return newKind(KindInvalidHostName, name, "host name is not a valid DNS label sequence", nil)
}

func InvalidDomainName(name string) error {
	return newKind(KindInvalidDomainName, name, "domain name is not a valid FQDN", nil)
}

func InvalidServiceName(name string) error {
	return newKind(KindInvalidServiceName, name, "service instance name exceeds 63 bytes or contains invalid characters", nil)
}

func InvalidServiceType(t string) error {
	return newKind(KindInvalidServiceType, t, "service type must be of the form _service._proto", nil)
}

func InvalidPort(port int) error {
	return newKind(KindInvalidPort, fmt.Sprintf("%d", port), "port must be in [1,65535]", nil)
}

func InvalidAddress(addr string) error {
	return newKind(KindInvalidAddress, addr, "address is not a valid IPv4 or IPv6 literal", nil)
}

func InvalidTTL(ttl uint32) error {
	return newKind(KindInvalidTTL, fmt.Sprintf("%d", ttl), "TTL out of range", nil)
}

func InvalidKey(subject string) error {
	return newKind(KindInvalidKey, subject, "record key is malformed", nil)
}

func InvalidRecord(subject string) error {
	return newKind(KindInvalidRecord, subject, "resource record is malformed or has an unsupported rdata shape", nil)
}

func InvalidFlags(subject string) error {
	return newKind(KindInvalidFlags, subject, "flag combination is not permitted", nil)
}

func InvalidInterface(subject string) error {
	return newKind(KindInvalidInterface, subject, "interface index/name does not resolve to an available interface", nil)
}

func InvalidProtocol(subject string) error {
	return newKind(KindInvalidProtocol, subject, "protocol must be one of IPv4, IPv6, or unspecified", nil)
}

func LocalCollision(name string) error {
	return newKind(KindLocalCollision, name, "record conflicts with a record this host already owns", nil)
}

func RecordExists(subject string) error {
	return newKind(KindRecordExists, subject, "an identical record is already registered", nil)
}

func OSError(op string, err error) error {
	return newKind(KindOSError, op, "operating system call failed", err)
}

func NoNetwork() error {
	return newKind(KindNoNetwork, "", "no usable multicast-capable interface is available", nil)
}

func TooManyClients() error {
	return newKind(KindTooManyClients, "", "client limit reached", nil)
}

func TooManyObjects() error {
	return newKind(KindTooManyObjects, "", "object limit reached", nil)
}

func TooManyEntries() error {
	return newKind(KindTooManyEntries, "", "entry-group capacity reached", nil)
}

func Timeout(op string) error {
	return newKind(KindTimeout, op, "operation timed out", nil)
}

func NotSupported(subject string) error {
	return newKind(KindNotSupported, subject, "not supported", nil)
}
