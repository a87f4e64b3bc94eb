// Package format builds and parses fiscal document numbers.
//
// A document number is {serialPrefix}{4-digit year}{9-digit zero-padded
// sequence}, e.g. EMA2026000000042. The functions here are pure: no side
// effects, no DB access, fully deterministic.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	yearDigits     = 4
	sequenceDigits = 9
)

var prefixRe = regexp.MustCompile(`^[A-Z]{1,8}$`)

// FormatDocumentNumber renders the externally visible document number.
func FormatDocumentNumber(serialPrefix string, year int, seq int64) (string, error) {
	serialPrefix = strings.ToUpper(strings.TrimSpace(serialPrefix))
	if !prefixRe.MatchString(serialPrefix) {
		return "", fmt.Errorf("invalid serial prefix %q", serialPrefix)
	}
	if year < 1000 || year > 9999 {
		return "", fmt.Errorf("invalid document year: %d", year)
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid document sequence: %d", seq)
	}
	if seq >= 1_000_000_000 {
		return "", fmt.Errorf("document sequence overflows %d digits: %d", sequenceDigits, seq)
	}
	return fmt.Sprintf("%s%0*d%0*d", serialPrefix, yearDigits, year, sequenceDigits, seq), nil
}

// SplitDocumentNumber extracts the numeric sequence from a document number
// that carries the given serial prefix and year.
func SplitDocumentNumber(documentNumber, serialPrefix string, year int) (int64, error) {
	head := fmt.Sprintf("%s%0*d", serialPrefix, yearDigits, year)
	if !strings.HasPrefix(documentNumber, head) {
		return 0, fmt.Errorf("document number %q does not match series %s/%d", documentNumber, serialPrefix, year)
	}
	suffix := documentNumber[len(head):]
	if len(suffix) != sequenceDigits {
		return 0, fmt.Errorf("document number %q has malformed sequence %q", documentNumber, suffix)
	}
	seq, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("document number %q has non-numeric sequence: %w", documentNumber, err)
	}
	return seq, nil
}

// VoucherNumber is the document number as presented to the fiscal gateway:
// the same string with the serial prefix stripped.
func VoucherNumber(documentNumber, serialPrefix string) string {
	return strings.TrimPrefix(documentNumber, serialPrefix)
}
