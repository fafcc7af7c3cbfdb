// Package utils holds small PII-safe formatting helpers for the
// structured logs the booking coordinator emits around contact
// identity and credit amounts.
package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// MaskUserID masks a contact UUID for logging, keeping only the
// first 8 characters: "d3c8c7a6-1234-5678-abcd-ef1234567890" ->
// "d3c8c7a6***".
func MaskUserID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8] + "***"
	}
	return "***"
}

// MaskAmount buckets a credit amount into a coarse range instead of
// logging the exact value: 50 -> "0-100", 500 -> "100-1000", 5000 ->
// "1000+".
func MaskAmount(amount int) string {
	if amount < 0 {
		amount = -amount
	}
	if amount < 100 {
		return "0-100"
	} else if amount < 1000 {
		return "100-1000"
	}
	return "1000+"
}

// MaskEmail keeps only the first character of the local part and the
// full domain: "user@example.com" -> "u***@example.com".
func MaskEmail(email string) string {
	if len(email) == 0 {
		return "***"
	}

	atIndex := -1
	for i, c := range email {
		if c == '@' {
			atIndex = i
			break
		}
	}
	if atIndex <= 0 {
		return "***"
	}
	return fmt.Sprintf("%c***%s", rune(email[0]), email[atIndex:])
}
