package security

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// RequestFingerprint hashes the parts of a request that must match for a retried request
// to count as the same request.
func RequestFingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
