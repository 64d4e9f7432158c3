package utils

import (
	"encoding/hex"

	"github.com/bytedance/sonic"
	"golang.org/x/crypto/blake2b"
)

// fingerprintSize is the digest length in bytes
const fingerprintSize = 16

// Fingerprint returns a short hex BLAKE2b digest of data
func Fingerprint(data []byte) string {
	h, _ := blake2b.New(fingerprintSize, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FingerprintJSON fingerprints the canonical JSON encoding of v, so equal
// values hash the same however they were encoded on the wire
func FingerprintJSON(v interface{}) (string, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "", err
	}
	return Fingerprint(data), nil
}
