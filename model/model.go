package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// HashTransfer generates a SHA-256 hash of a transfer's identifying fields,
// used to fingerprint a transfer in webhook payloads and audit trails.
func (t *Transfer) HashTransfer() string {
	data := fmt.Sprintf("%d%d%s%s%s", t.GrossAmount, t.ReplayNonce, t.Sender, t.Recipient, t.Referral)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
