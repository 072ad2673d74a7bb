package crypto

import "encoding/base64"

// B64 returns unpadded standard base64, the encoding used for keys and signatures on the wire.
func B64(b []byte) string { return base64.RawStdEncoding.EncodeToString(b) }

// UnB64 decodes unpadded base64, tolerating padded input from older peers.
func UnB64(s string) ([]byte, error) {
	if n := len(s); n > 0 && s[n-1] == '=' {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
