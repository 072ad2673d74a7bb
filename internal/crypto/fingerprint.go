package crypto

import (
	"strings"

	"olmcore/internal/domain"
)

// Fingerprint formats an Ed25519 key for out-of-band comparison: the unpadded base64
// key split into space separated groups of four characters.
func Fingerprint(pub domain.Ed25519Public) string {
	s := pub.String()
	var b strings.Builder
	for i := 0; i < len(s); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s[i:min(i+4, len(s))])
	}
	return b.String()
}
