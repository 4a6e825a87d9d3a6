package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
)

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"25569":                "1970-01-01",
		"40179":                "2010-01-01",
		"40179.75":             "2010-01-01",
		"60":                   "1900-02-28",
		"61":                   "1900-03-01",
		"2958465":              "9999-12-31",
		"2009-11-02":           "2009-11-02",
		"2009-11-02T08:30:00Z": "2009-11-02",
		"15/03/2010":           "2010-03-15",
		"05/04/2011":           "2011-04-05",
		"15-03-2010":           "2010-03-15",
		"15.03.2010":           "2010-03-15",
		"not a date":           "",
		"0":                    "",
		"-3":                   "",
		"99999999":             "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeDate(raw), "input %q", raw)
	}
}

func TestNormalizeDateRoundTrip(t *testing.T) {
	start := time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < 365*3; d += 17 {
		day := start.AddDate(0, 0, d)
		iso := NormalizeTime(day)
		assert.Equal(t, iso, NormalizeDate(iso))
		assert.Equal(t, iso, NormalizeDate(day.Format("02/01/2006")))
	}
	assert.Equal(t, "", NormalizeTime(time.Time{}))
}

func TestGenderIsTotal(t *testing.T) {
	inputs := []string{"M", "f", " Male ", "FEMALE", "ذكر", "أنثى", "Fille", "garçon", "", "x", "unknown", "42"}
	for _, raw := range inputs {
		g := NormalizeGender(raw)
		assert.Contains(t, []models.Gender{models.GenderMale, models.GenderFemale}, g, "input %q", raw)
	}

	g, ok := ParseGender("أنثى")
	assert.True(t, ok)
	assert.Equal(t, models.GenderFemale, g)

	g, ok = ParseGender("ذكر")
	assert.True(t, ok)
	assert.Equal(t, models.GenderMale, g)

	g, ok = ParseGender("?")
	assert.False(t, ok)
	assert.Equal(t, models.GenderMale, g)
}

func TestNormalizeScore(t *testing.T) {
	s := NormalizeScore("12,75")
	require.True(t, s.Valid)
	assert.Equal(t, "12.75", s.Decimal.String())

	s = NormalizeScore("15")
	require.True(t, s.Valid)
	assert.Equal(t, "15", s.Decimal.String())

	for _, absent := range []string{"غ", "غائب", "ABS", "absent"} {
		s = NormalizeScore(absent)
		require.True(t, s.Valid, absent)
		assert.True(t, s.Decimal.IsZero(), absent)
	}

	assert.False(t, NormalizeScore("").Valid)
	assert.False(t, NormalizeScore("n/a").Valid)
}

func TestAgeGroup(t *testing.T) {
	today := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]string{
		"2021-01-01": AgeGroupUnder6,
		"2019-10-01": AgeGroup6to11,
		"2013-10-02": AgeGroup6to11,
		"2013-10-01": AgeGroup12to14,
		"2010-03-15": AgeGroup15to17,
		"2007-09-30": AgeGroup18to22,
		"2000-01-01": AgeGroupOver22,
		"":           "",
		"garbage":    "",
	}
	for dob, want := range cases {
		assert.Equal(t, want, AgeGroup(dob, today), "dob %s", dob)
	}
	assert.Equal(t, -1, AgeAt("bad", today))
}

func TestNormalizeNationalID(t *testing.T) {
	assert.Equal(t, "J130045678", NormalizeNationalID(" j130 045 678 "))
	assert.Equal(t, "", NormalizeNationalID("   "))
}
