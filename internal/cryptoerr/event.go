package cryptoerr

import "fmt"

// EventErrorKind enumerates malformed or unsupported payload shapes.
type EventErrorKind int

const (
	UnsupportedOlmType EventErrorKind = iota + 1
	UnsupportedAlgorithm
	NotAnObject
	MissingCiphertext
	MissingSigningKey
	MissingField
	MissmatchedSender
	MissmatchedKeys
)

// EventError is a decryption failure for one message. It never implies corrupted session state.
type EventError struct {
	Kind  EventErrorKind
	Field string // set for MissingField
}

func (e *EventError) Error() string {
	switch e.Kind {
	case UnsupportedOlmType:
		return "the Olm message has an unsupported type"
	case UnsupportedAlgorithm:
		return "the encrypted message has been encrypted with an unsupported algorithm"
	case NotAnObject:
		return "the provided JSON value isn't an object"
	case MissingCiphertext:
		return "the encrypted message doesn't contain a ciphertext for our device"
	case MissingSigningKey:
		return "the encrypted message is missing the signing key of the sender"
	case MissingField:
		return fmt.Sprintf("the encrypted message is missing the field %s", e.Field)
	case MissmatchedSender:
		return "the sender of the plaintext doesn't match the sender of the encrypted message"
	case MissmatchedKeys:
		return "the keys of the message don't match the keys in our database"
	default:
		return fmt.Sprintf("event error kind %d", int(e.Kind))
	}
}

// Is matches any EventError of the same kind. A MissingField target with an empty
// Field matches every missing field.
func (e *EventError) Is(target error) bool {
	t, ok := target.(*EventError)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.Field == "" || t.Field == e.Field
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedOlmType   = &EventError{Kind: UnsupportedOlmType}
	ErrUnsupportedAlgorithm = &EventError{Kind: UnsupportedAlgorithm}
	ErrNotAnObject          = &EventError{Kind: NotAnObject}
	ErrMissingCiphertext    = &EventError{Kind: MissingCiphertext}
	ErrMissingSigningKey    = &EventError{Kind: MissingSigningKey}
	ErrMissingField         = &EventError{Kind: MissingField}
	ErrMissmatchedSender    = &EventError{Kind: MissmatchedSender}
	ErrMissmatchedKeys      = &EventError{Kind: MissmatchedKeys}
)

// NewMissingField returns a MissingField error naming field.
func NewMissingField(field string) *EventError {
	return &EventError{Kind: MissingField, Field: field}
}
