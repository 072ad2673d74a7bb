package cryptoerr

import "fmt"

// SignatureErrorKind enumerates reasons a signed JSON payload is rejected.
type SignatureErrorKind int

const (
	SignatureNotAnObject SignatureErrorKind = iota + 1
	NoSignatureFound
	CanonicalJSON
	VerificationFailed
)

// SignatureError rejects the payload being verified.
type SignatureError struct {
	Kind SignatureErrorKind
	Err  error // canonicalization cause for CanonicalJSON
}

func (e *SignatureError) Error() string {
	switch e.Kind {
	case SignatureNotAnObject:
		return "the provided JSON value isn't an object"
	case NoSignatureFound:
		return "the provided JSON object doesn't contain a signatures field"
	case CanonicalJSON:
		if e.Err != nil {
			return fmt.Sprintf("the provided JSON object can't be converted to a canonical representation: %v", e.Err)
		}
		return "the provided JSON object can't be converted to a canonical representation"
	case VerificationFailed:
		return "the signature didn't match the provided key"
	default:
		return fmt.Sprintf("signature error kind %d", int(e.Kind))
	}
}

func (e *SignatureError) Unwrap() error { return e.Err }

// Is matches any SignatureError of the same kind.
func (e *SignatureError) Is(target error) bool {
	t, ok := target.(*SignatureError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrSignatureNotAnObject = &SignatureError{Kind: SignatureNotAnObject}
	ErrNoSignatureFound     = &SignatureError{Kind: NoSignatureFound}
	ErrCanonicalJSON        = &SignatureError{Kind: CanonicalJSON}
	ErrVerification         = &SignatureError{Kind: VerificationFailed}
)
