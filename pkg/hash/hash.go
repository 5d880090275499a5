package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// identityIterations is the SHA256 iteration count for submitter identities.
const identityIterations = 5000

// SHA256Hex returns the hex-encoded SHA256 hash of the input string.
func SHA256Hex(input string) string {
	h := sha256.Sum256([]byte(input))
	return hex.EncodeToString(h[:])
}

// IteratedSHA256 applies SHA256 iteratively n times to produce a derived hash.
func IteratedSHA256(input string, iterations int) string {
	data := []byte(input)
	for range iterations {
		h := sha256.Sum256(data)
		data = h[:]
	}
	return hex.EncodeToString(data)
}

// HashIP hashes an IP address with a salt. The result is what gets stored
// and compared by the Sybil check; raw IPs are never persisted.
func HashIP(ip, salt string) string {
	return IteratedSHA256(salt+"ip:"+strings.TrimSpace(ip), identityIterations)
}

// HashContact hashes a submitter contact address with a salt after
// normalizing case and surrounding whitespace. Empty input hashes to "".
func HashContact(contact, salt string) string {
	contact = strings.ToLower(strings.TrimSpace(contact))
	if contact == "" {
		return ""
	}
	return IteratedSHA256(salt+"contact:"+contact, identityIterations)
}
