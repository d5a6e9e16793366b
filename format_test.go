package indiclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumberFormat(t *testing.T) {
	nf, err := ParseNumberFormat("%010.6m")
	require.NoError(t, err)
	assert.True(t, nf.ZeroPad)
	assert.Equal(t, 10, nf.Width)
	assert.Equal(t, 6, nf.Precision)
	assert.Equal(t, byte('m'), nf.Verb)

	_, err = ParseNumberFormat("not-a-format")
	assert.Error(t, err)
}

func TestFormatNumber_PlainVerbs(t *testing.T) {
	s, err := FormatNumber(3.14159, "%.2f", StyleHMS)
	require.NoError(t, err)
	assert.Equal(t, "3.14", s)

	s, err = FormatNumber(42, "%d", StyleHMS)
	require.NoError(t, err)
	assert.Equal(t, "42", s)
}

func TestFormatNumber_ZeroPadWidth(t *testing.T) {
	s, err := FormatNumber(3, "%05d", StyleHMS)
	require.NoError(t, err)
	assert.Equal(t, "00003", s)

	s, err = FormatNumber(-3, "%05d", StyleHMS)
	require.NoError(t, err)
	assert.Equal(t, "-0003", s)
}

func TestFormatNumber_PlusPrefix(t *testing.T) {
	s, err := FormatNumber(3.5, "%+.1f", StyleHMS)
	require.NoError(t, err)
	assert.Equal(t, "+3.5", s)
}

// These cases deliberately omit a width: FormatNumber's zero-pad step
// operates on the rendered byte length, and the sexagesimal separators are
// multi-byte UTF-8, so combining a small width with 'm' produces surprising
// padding -- exercised instead by TestFormatNumber_SexagesimalWidthPadsBytes.
func TestFormatNumber_SexagesimalHMS(t *testing.T) {
	s, err := FormatNumber(12.5, "%.6m", StyleHMS)
	require.NoError(t, err)
	assert.Equal(t, "12ʰ30ᵐ", s)
}

func TestFormatNumber_SexagesimalDMSNegative(t *testing.T) {
	s, err := FormatNumber(-45.25, "%.6m", StyleDMS)
	require.NoError(t, err)
	assert.Equal(t, "-45°15'", s)
}

func TestFormatNumber_SexagesimalWholeSeconds(t *testing.T) {
	s, err := FormatNumber(1.0083333, "%.8m", StyleHMS)
	require.NoError(t, err)
	assert.Equal(t, "1ʰ00ᵐ30ˢ", s)
}

// TestFormatNumber_SexagesimalWidthPadsBytes documents that width/zero-pad
// counts UTF-8 bytes, not rendered columns, for the 'm' verb: "-45°15'" is 7
// columns but 8 bytes ('°' is two bytes), so a width of 10 adds only two
// zeros instead of three.
func TestFormatNumber_SexagesimalWidthPadsBytes(t *testing.T) {
	s, err := FormatNumber(-45.25, "%010.6m", StyleDMS)
	require.NoError(t, err)
	assert.Equal(t, "-0045°15'", s)
}
