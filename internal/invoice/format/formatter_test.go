package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDocumentNumber(t *testing.T) {
	got, err := FormatDocumentNumber("EMA", 2026, 42)
	assert.NoError(t, err)
	assert.Equal(t, "EMA2026000000042", got)

	got, err = FormatDocumentNumber("EEA", 2026, 1)
	assert.NoError(t, err)
	assert.Equal(t, "EEA2026000000001", got)
}

func TestFormatDocumentNumber_Invalid(t *testing.T) {
	_, err := FormatDocumentNumber("", 2026, 1)
	assert.Error(t, err)

	_, err = FormatDocumentNumber("EMA", 2026, 0)
	assert.Error(t, err)

	_, err = FormatDocumentNumber("EMA", 2026, -5)
	assert.Error(t, err)

	_, err = FormatDocumentNumber("EMA", 26, 1)
	assert.Error(t, err)

	_, err = FormatDocumentNumber("EMA", 2026, 1_000_000_000)
	assert.Error(t, err)

	_, err = FormatDocumentNumber("ema9", 2026, 1)
	assert.Error(t, err)
}

func TestSplitDocumentNumber(t *testing.T) {
	seq, err := SplitDocumentNumber("EMA2026000000007", "EMA", 2026)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), seq)

	seq, err = SplitDocumentNumber("EMA2026999999999", "EMA", 2026)
	assert.NoError(t, err)
	assert.Equal(t, int64(999_999_999), seq)
}

func TestSplitDocumentNumber_Malformed(t *testing.T) {
	// Wrong series.
	_, err := SplitDocumentNumber("EMA2025000000007", "EMA", 2026)
	assert.Error(t, err)

	// Non-numeric suffix.
	_, err = SplitDocumentNumber("EMA2026ABCDEFGHI", "EMA", 2026)
	assert.Error(t, err)

	// Truncated suffix.
	_, err = SplitDocumentNumber("EMA20260042", "EMA", 2026)
	assert.Error(t, err)
}

func TestVoucherNumber(t *testing.T) {
	assert.Equal(t, "2026000000042", VoucherNumber("EMA2026000000042", "EMA"))
	assert.Equal(t, "2026000000001", VoucherNumber("EEA2026000000001", "EEA"))
}

func TestFormatSplitRoundTrip(t *testing.T) {
	for _, seq := range []int64{1, 7, 99, 123456789, 999999998} {
		number, err := FormatDocumentNumber("EFA", 2026, seq)
		assert.NoError(t, err)
		parsed, err := SplitDocumentNumber(number, "EFA", 2026)
		assert.NoError(t, err)
		assert.Equal(t, seq, parsed)
	}
}
