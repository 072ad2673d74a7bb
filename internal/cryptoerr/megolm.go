package cryptoerr

import "fmt"

// MegolmErrorKind enumerates failures of group encryption operations.
type MegolmErrorKind int

const (
	MegolmEvent MegolmErrorKind = iota + 1
	MegolmJSON
	MegolmMissingSession
	MegolmGroupSession
	MegolmStore
)

// MegolmError is returned by the group session manager.
type MegolmError struct {
	Kind MegolmErrorKind
	Err  error
}

func (e *MegolmError) Error() string {
	switch e.Kind {
	case MegolmEvent, MegolmJSON, MegolmStore:
		if e.Err == nil {
			return "megolm operation failed"
		}
		return e.Err.Error()
	case MegolmMissingSession:
		return "decryption failed because the session to decrypt the message is missing"
	case MegolmGroupSession:
		return fmt.Sprintf("can't finish Olm group session operation: %v", e.Err)
	default:
		return fmt.Sprintf("megolm error kind %d", int(e.Kind))
	}
}

func (e *MegolmError) Unwrap() error { return e.Err }

// Is matches a MegolmError sentinel of the same kind.
func (e *MegolmError) Is(target error) bool {
	t, ok := target.(*MegolmError)
	return ok && t.Kind == e.Kind && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrMegolmMissingSession = &MegolmError{Kind: MegolmMissingSession}
	ErrMegolmGroupSession   = &MegolmError{Kind: MegolmGroupSession}
	ErrMegolmStore          = &MegolmError{Kind: MegolmStore}
	ErrMegolmJSON           = &MegolmError{Kind: MegolmJSON}
)

// Megolm wraps err in a MegolmError of the given kind.
func Megolm(kind MegolmErrorKind, err error) *MegolmError { return &MegolmError{Kind: kind, Err: err} }

// MegolmEventErr wraps an EventError.
func MegolmEventErr(err *EventError) *MegolmError { return &MegolmError{Kind: MegolmEvent, Err: err} }
