package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Banco Uno":             "banco-uno",
		"Banco Santánder S.A.":  "banco-santander-s-a",
		"  Caja   Rural  ":      "caja-rural",
		"Año 2024 / Ñandú":      "ano-2024-nandu",
		"***":                   "",
		"Crédit Agricole (FR)!": "credit-agricole-fr",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2024, 10, 25, 14, 30, 0, 123_000_000, time.FixedZone("CEST", 2*3600))
	s := FormatTimestamp(ts)
	assert.Equal(t, "2024-10-25T12:30:00.123Z", s)

	back, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))

	rfc, err := ParseTimestamp("2024-10-25T14:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-10-25T12:30:00.000Z", FormatTimestamp(rfc))

	_, err = ParseTimestamp("25/10/2024")
	assert.Error(t, err)
}

func TestTimestampsSortLexically(t *testing.T) {
	a := FormatTimestamp(time.Date(2024, 9, 30, 23, 59, 59, 999_000_000, time.UTC))
	b := FormatTimestamp(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC))
	assert.Less(t, a, b)
}

func TestMonthsBeforeIsCalendarBased(t *testing.T) {
	now := time.Date(2024, 10, 25, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 7, 25, 14, 30, 0, 0, time.UTC), MonthsBefore(now, 3))

	// July has 31 days, so this is not the same as 90 days back
	assert.NotEqual(t, now.AddDate(0, 0, -90), MonthsBefore(now, 3))
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, SplitAndTrim("  "))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, SplitAndTrim(" https://a.example , ,https://b.example "))
}
