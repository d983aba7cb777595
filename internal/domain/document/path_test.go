package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPath(t *testing.T) {
	tests := []struct {
		name     string
		scope    string
		year     int
		kind     Kind
		filename string
		expected string
	}{
		{"invoice", "klanten/acme", 2025, KindInvoice, "INV-001", "klanten/acme/2025/facturen/INV-001.pdf"},
		{"keeps pdf suffix once", "klanten/acme", 2025, KindInvoice, "INV-001.pdf", "klanten/acme/2025/facturen/INV-001.pdf"},
		{"strips diacritics", "klanten/Café Zürich", 2024, KindQuote, "Offerte één", "klanten/Cafe-Zurich/2024/offertes/Offerte-een.pdf"},
		{"collapses separators", "/klanten//acme/", 2025, KindPackingSlip, "PS 7", "klanten/acme/2025/pakbonnen/PS-7.pdf"},
		{"labels", "orders", 2025, KindShippingLabel, "1001", "orders/2025/verzendlabels/1001.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPath(tt.scope, tt.year, tt.kind, tt.filename)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildPath_Invalid(t *testing.T) {
	_, err := BuildPath("", 2025, KindInvoice, "x")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = BuildPath("a", 1900, KindInvoice, "x")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = BuildPath("a", 2025, Kind("BOGUS"), "x")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = BuildPath("a", 2025, KindInvoice, "???")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSanitizeSegment(t *testing.T) {
	assert.Equal(t, "Acme-B.V.", SanitizeSegment("Acme B.V."))
	assert.Equal(t, "", SanitizeSegment(".."))
	assert.Equal(t, "a_b", SanitizeSegment("  a_b  "))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("shipping-label")
	assert.True(t, ok)
	assert.Equal(t, KindShippingLabel, k)

	_, ok = ParseKind("receipt")
	assert.False(t, ok)
}

func TestPageOptions(t *testing.T) {
	t.Run("label defaults", func(t *testing.T) {
		opts := DefaultPageOptions(KindAddressLabel)
		assert.Equal(t, PaperSizeAddressLabel, opts.PaperSize)
		assert.Equal(t, LabelMargins(), opts.Margins)
		assert.NoError(t, opts.Validate())
	})

	t.Run("custom size requires dimensions", func(t *testing.T) {
		opts := PageOptions{PaperSize: PaperSizeCustom, Margins: LabelMargins()}
		assert.ErrorIs(t, opts.Validate(), ErrInvalidInput)

		opts.WidthMM, opts.HeightMM = 100, 50
		assert.NoError(t, opts.Validate())
	})

	t.Run("margins must leave printable area", func(t *testing.T) {
		opts := PageOptions{PaperSize: PaperSizeAddressLabel, Margins: Margins{Top: 20, Bottom: 20}}
		assert.ErrorIs(t, opts.Validate(), ErrInvalidInput)
	})

	t.Run("negative margins", func(t *testing.T) {
		_, err := NewMargins(-1, 0, 0, 0)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
