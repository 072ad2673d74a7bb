// Package cryptoerr defines the error vocabulary shared by the session managers.
//
// Each family (OlmError, MegolmError, EventError, SignatureError) is a closed set of
// kinds. A value is either a leaf (Kind only) or wraps a lower-level cause, so
// callers can branch with errors.Is against the exported sentinels and still walk
// the cause chain with errors.Unwrap for diagnostics.
//
//	pt, err := groups.Decrypt(ctx, room, sender, ev)
//	switch {
//	case errors.Is(err, cryptoerr.ErrMegolmMissingSession):
//		// ask the sender to re-share the room key
//	case errors.Is(err, cryptoerr.ErrMissmatchedSender):
//		// drop the event
//	}
//
// Store failures are always wrapped in *StoreError and never retried inside the core.
package cryptoerr
