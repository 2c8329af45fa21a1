package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

// FingerprintFields are the logically significant fields of a payment
// request. Anything not listed here never affects whether two requests are
// considered the same. Do not change the set or order without migrating
// in-flight attempts.
type FingerprintFields struct {
	OrganizationID   string
	AmountCents      int64
	Currency         string
	FlowType         models.FlowType
	DonorEmail       string
	DonorName        string
	TargetEntityID   string
	Purpose          string
	PlatformFeeCents int64
}

// HashFingerprint returns the hex SHA-256 of the ordered field tuple.
func HashFingerprint(f FingerprintFields) string {
	tuple := []interface{}{
		strings.TrimSpace(f.OrganizationID),
		f.AmountCents,
		strings.ToLower(strings.TrimSpace(f.Currency)),
		string(f.FlowType),
		strings.ToLower(strings.TrimSpace(f.DonorEmail)),
		strings.TrimSpace(f.DonorName),
		strings.TrimSpace(f.TargetEntityID),
		strings.TrimSpace(f.Purpose),
		f.PlatformFeeCents,
	}
	// A JSON array keeps field boundaries unambiguous.
	encoded, err := json.Marshal(tuple)
	if err != nil {
		// strings and int64 always marshal
		panic(err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
