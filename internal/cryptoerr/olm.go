package cryptoerr

import "fmt"

// OlmErrorKind enumerates failures of device to device operations.
type OlmErrorKind int

const (
	OlmEvent OlmErrorKind = iota + 1
	OlmJSON
	OlmSession
	OlmGroupSession
	OlmStore
	OlmSessionWedged
	OlmMissingSession
)

// OlmError is returned by the device session manager.
type OlmError struct {
	Kind OlmErrorKind
	Err  error
}

func (e *OlmError) Error() string {
	switch e.Kind {
	case OlmEvent, OlmJSON:
		if e.Err == nil {
			return "malformed Olm event"
		}
		return e.Err.Error()
	case OlmSession:
		return fmt.Sprintf("can't finish Olm session operation: %v", e.Err)
	case OlmGroupSession:
		return fmt.Sprintf("can't finish Olm group session operation: %v", e.Err)
	case OlmStore:
		return fmt.Sprintf("failed to read or write to the crypto store: %v", e.Err)
	case OlmSessionWedged:
		return "decryption failed likely because an Olm session was wedged"
	case OlmMissingSession:
		return "no Olm session with the device; a one-time key must be claimed first"
	default:
		return fmt.Sprintf("olm error kind %d", int(e.Kind))
	}
}

func (e *OlmError) Unwrap() error { return e.Err }

// Is matches an OlmError sentinel of the same kind.
func (e *OlmError) Is(target error) bool {
	t, ok := target.(*OlmError)
	return ok && t.Kind == e.Kind && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrOlmSession        = &OlmError{Kind: OlmSession}
	ErrOlmGroupSession   = &OlmError{Kind: OlmGroupSession}
	ErrOlmStore          = &OlmError{Kind: OlmStore}
	ErrOlmJSON           = &OlmError{Kind: OlmJSON}
	ErrSessionWedged     = &OlmError{Kind: OlmSessionWedged}
	ErrOlmMissingSession = &OlmError{Kind: OlmMissingSession}
)

// Olm wraps err in an OlmError of the given kind.
func Olm(kind OlmErrorKind, err error) *OlmError { return &OlmError{Kind: kind, Err: err} }

// OlmEventErr wraps an EventError.
func OlmEventErr(err *EventError) *OlmError { return &OlmError{Kind: OlmEvent, Err: err} }
