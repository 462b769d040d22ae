package contract

import (
	stderrors "errors"
	"testing"

	"github.com/lanbeacon/mdnsd/internal/errors"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// TestErrorKindsDispatchable verifies every API error exposes its failure
// class through the Kinded interface, so callers can branch without
// matching concrete types.
func TestErrorKindsDispatchable(t *testing.T) {
	cases := map[error]errors.Kind{
		errors.BadState("committed"):        errors.KindBadState,
		errors.InvalidHostName("bad name"):  errors.KindInvalidHostName,
		errors.InvalidServiceType("x"):      errors.KindInvalidServiceType,
		errors.NoNetwork():                  errors.KindNoNetwork,
		errors.Timeout("resolve"):           errors.KindTimeout,
		errors.OSError("bind", stderrors.New("EADDRINUSE")): errors.KindOSError,
	}
	for err, want := range cases {
		var kinded errors.Kinded
		if !stderrors.As(err, &kinded) {
			t.Errorf("%v does not implement Kinded", err)
			continue
		}
		if kinded.Kind() != want {
			t.Errorf("%v Kind() = %v, want %v", err, kinded.Kind(), want)
		}
	}
}

// TestMalformedPacketsRejectedNotPanicking verifies the §7 propagation
// rule for wire errors: malformed inbound packets yield an error from the
// decoder, never a panic, and never a partially decoded message.
func TestMalformedPacketsRejectedNotPanicking(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0, 0, 0},              // shorter than the header
		{0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0}, // QDCount=1 but no question
		{0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0xC0, 0x0C, 0, 1, 0, 1}, // self-referential pointer
	}
	for i, buf := range cases {
		msg, err := wire.Decode(buf)
		if err == nil {
			t.Errorf("case %d: malformed packet decoded to %+v", i, msg)
		}
	}
}

// TestOSErrorWrapsCause verifies OSError keeps its cause reachable via
// errors.Unwrap for callers that need the underlying errno.
func TestOSErrorWrapsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := errors.OSError("sendto", cause)
	if !stderrors.Is(err, cause) {
		t.Error("OSError does not unwrap to its cause")
	}
}
