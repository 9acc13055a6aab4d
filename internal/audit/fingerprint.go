// Package audit keeps the tamper-evidence trail of committed transactions:
// one fingerprint per transaction record, appended and never rewritten.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the hex SHA-256 digest of a transaction id.
func Fingerprint(transactionID string) string {
	sum := sha256.Sum256([]byte(transactionID))
	return hex.EncodeToString(sum[:])
}
