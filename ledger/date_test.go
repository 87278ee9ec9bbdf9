package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crewtime/ledger"
)

func TestParseDate(t *testing.T) {
	d, err := ledger.ParseDate("2024-03-05")
	require.NoError(t, err)
	assert.Equal(t, ledger.NewDate(2024, time.March, 5), d)
	assert.Equal(t, "2024-03-05", d.String())

	_, err = ledger.ParseDate("05.03.2024")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestDateOf_DropsClock(t *testing.T) {
	warsaw := time.FixedZone("CET", 3600)
	d := ledger.DateOf(time.Date(2024, time.March, 5, 23, 30, 0, 0, warsaw))
	assert.Equal(t, ledger.NewDate(2024, time.March, 5), d)
}

func TestYearMonth_Bounds(t *testing.T) {
	ym, err := ledger.ParseYearMonth("2024-02")
	require.NoError(t, err)
	assert.Equal(t, 29, ym.Last().Day(), "leap year")
	assert.Equal(t, "2024-02", ym.String())

	dec := ledger.YearMonth{Year: 2023, Month: time.December}
	assert.Equal(t, ledger.NewDate(2023, time.December, 31), dec.Last())
	assert.True(t, dec.Contains(ledger.NewDate(2023, time.December, 1)))
	assert.False(t, dec.Contains(ledger.NewDate(2024, time.January, 1)))
}

func TestDateRange_OpenBounds(t *testing.T) {
	d := ledger.NewDate(2024, time.March, 5)
	assert.True(t, ledger.DateRange{}.Contains(d))
	assert.True(t, ledger.DateRange{From: d}.Contains(d))
	assert.False(t, ledger.DateRange{To: d.AddDays(-1)}.Contains(d))
}

func TestDate_TextRoundTrip(t *testing.T) {
	var d ledger.Date
	require.NoError(t, d.UnmarshalText([]byte("2024-03-10")))
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", string(text))
}

func TestNewDate_Normalizes(t *testing.T) {
	assert.Equal(t, ledger.NewDate(2025, time.January, 1), ledger.NewDate(2024, 13, 1))
	assert.Equal(t, ledger.NewDate(2024, time.February, 29), ledger.NewDate(2024, time.March, 0))
	assert.Equal(t, time.Monday, ledger.NewDate(2024, time.March, 4).Weekday())
	assert.True(t, ledger.Date{}.IsZero())
	assert.False(t, ledger.NewDate(2024, time.March, 4).IsZero())
}
