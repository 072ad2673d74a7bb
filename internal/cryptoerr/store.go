package cryptoerr

import (
	"context"
	"errors"
	"fmt"
)

// StoreError is an opaque failure propagated from a crypto store backend.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("crypto store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps a backend error; it returns nil for a nil err.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Cancelled reports whether err comes from the caller's context being cancelled or
// timing out.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// OlmStoreFailure wraps a failed store access as an OlmError. Cancellation is returned
// as is.
func OlmStoreFailure(err error) error {
	if Cancelled(err) {
		return err
	}
	return &OlmError{Kind: OlmStore, Err: err}
}

// MegolmStoreFailure wraps a failed store access as a MegolmError. Cancellation is
// returned as is.
func MegolmStoreFailure(err error) error {
	if Cancelled(err) {
		return err
	}
	return &MegolmError{Kind: MegolmStore, Err: err}
}

// Kind returns a short label for err, used for metrics and logs.
func Kind(err error) string {
	switch e := err.(type) {
	case nil:
		return "none"
	case *OlmError:
		switch e.Kind {
		case OlmEvent:
			return Kind(e.Err)
		case OlmJSON:
			return "json"
		case OlmSession:
			return "olm_session"
		case OlmGroupSession:
			return "olm_group_session"
		case OlmStore:
			return "store"
		case OlmSessionWedged:
			return "session_wedged"
		case OlmMissingSession:
			return "missing_session"
		}
	case *MegolmError:
		switch e.Kind {
		case MegolmEvent:
			return Kind(e.Err)
		case MegolmJSON:
			return "json"
		case MegolmMissingSession:
			return "missing_session"
		case MegolmGroupSession:
			return "olm_group_session"
		case MegolmStore:
			return "store"
		}
	case *EventError:
		switch e.Kind {
		case UnsupportedOlmType:
			return "unsupported_olm_type"
		case UnsupportedAlgorithm:
			return "unsupported_algorithm"
		case NotAnObject:
			return "not_an_object"
		case MissingCiphertext:
			return "missing_ciphertext"
		case MissingSigningKey:
			return "missing_signing_key"
		case MissingField:
			return "missing_field"
		case MissmatchedSender:
			return "missmatched_sender"
		case MissmatchedKeys:
			return "missmatched_keys"
		}
	case *StoreError:
		return "store"
	}
	if Cancelled(err) {
		return "cancelled"
	}
	return "other"
}
