/**
 * @description
 * Reference-code generation for transfers. Codes are the public tracking key:
 * short, human-usable, and unique among all ledger records. Uniqueness is
 * enforced by the database; the generator only has to make collisions rare
 * enough that regeneration retries stay cheap.
 */

package store

import (
	"crypto/rand"
	"fmt"
)

// Codes look like "HWL-7K2M9QX4". The charset drops 0/O/1/I to keep codes
// readable over the phone.
const (
	referenceCodePrefix  = "HWL-"
	referenceCodeCharset = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	referenceCodeLength  = 8
)

// NewReferenceCode generates a random transfer reference code.
func NewReferenceCode() (string, error) {
	buf := make([]byte, referenceCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes for reference code: %w", err)
	}
	for i, b := range buf {
		buf[i] = referenceCodeCharset[int(b)%len(referenceCodeCharset)]
	}
	return referenceCodePrefix + string(buf), nil
}
