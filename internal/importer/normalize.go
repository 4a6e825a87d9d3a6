package importer

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/pkg/spreadsheet"
)

const isoDate = "2006-01-02"

// spreadsheetEpochOffset is the serial number of 1970-01-01 in the 1900 date system.
const spreadsheetEpochOffset = 25569

// firstRealSerial is 1900-03-01. Lower serials sit before the phantom 1900-02-29
// and are converted arithmetically from the epoch offset.
const firstRealSerial = 61

var dateLayouts = []string{
	isoDate,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2/1/2006",
}

// NormalizeDate converts a spreadsheet serial number or a date string into
// YYYY-MM-DD. Unparseable input yields "".
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		return serialToDate(serial)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(isoDate)
		}
	}
	return ""
}

// NormalizeTime formats an already structured date value.
func NormalizeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(isoDate)
}

func serialToDate(serial float64) string {
	if serial >= firstRealSerial {
		t, ok := spreadsheet.SerialToTime(math.Floor(serial))
		if !ok {
			return ""
		}
		return t.Format(isoDate)
	}
	if math.IsNaN(serial) || serial < 1 {
		return ""
	}
	days := int(math.Floor(serial)) - spreadsheetEpochOffset
	return time.Unix(0, 0).UTC().AddDate(0, 0, days).Format(isoDate)
}

var (
	maleTokens   = []string{"male", "m", "masculin", "garçon", "garcon", "ذكر", "ذ"}
	femaleTokens = []string{"female", "f", "féminin", "feminin", "fille", "أنثى", "انثى", "أنتى", "أ", "ا"}
)

var genderSynonyms = func() map[string]models.Gender {
	m := make(map[string]models.Gender, len(maleTokens)+len(femaleTokens))
	for _, t := range maleTokens {
		m[t] = models.GenderMale
	}
	for _, t := range femaleTokens {
		m[t] = models.GenderFemale
	}
	return m
}()

// ParseGender matches raw against the synonym table. The boolean is false when the
// input was not recognised.
func ParseGender(raw string) (models.Gender, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	g, ok := genderSynonyms[key]
	if !ok {
		return models.GenderMale, false
	}
	return g, true
}

// NormalizeGender always returns one of the two canonical values; unrecognised input
// defaults to MALE.
func NormalizeGender(raw string) models.Gender {
	g, _ := ParseGender(raw)
	return g
}

// absentScoreTokens are the spellings of the "absent" marker found in mark sheets.
var absentScoreTokens = []string{"غ", "غائب", "غائبة", "غياب", "abs", "absent", "absente"}

func isAbsentToken(raw string) bool {
	raw = strings.ToLower(raw)
	for _, t := range absentScoreTokens {
		if raw == t {
			return true
		}
	}
	return false
}

// NormalizeScore parses a mark. Absent markers become zero; unparseable input
// becomes an invalid (absent) score, which is distinct from zero.
func NormalizeScore(raw string) decimal.NullDecimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.NullDecimal{}
	}
	if isAbsentToken(raw) {
		return decimal.NewNullDecimal(decimal.Zero)
	}
	d, err := decimal.NewFromString(strings.Replace(raw, ",", ".", 1))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// Age groups.
const (
	AgeGroupUnder6 = "<6"
	AgeGroup6to11  = "6-11"
	AgeGroup12to14 = "12-14"
	AgeGroup15to17 = "15-17"
	AgeGroup18to22 = "18-22"
	AgeGroupOver22 = ">22"
)

// AgeAt returns the age in whole years on today, or -1 when dob is not an ISO date.
func AgeAt(dob string, today time.Time) int {
	born, err := time.Parse(isoDate, dob)
	if err != nil {
		return -1
	}
	y, m, d := today.Date()
	age := y - born.Year()
	if m < born.Month() || (m == born.Month() && d < born.Day()) {
		age--
	}
	return age
}

// AgeGroup buckets the age derived from dob. An empty or invalid date yields "".
func AgeGroup(dob string, today time.Time) string {
	age := AgeAt(dob, today)
	switch {
	case age < 0:
		return ""
	case age < 6:
		return AgeGroupUnder6
	case age <= 11:
		return AgeGroup6to11
	case age <= 14:
		return AgeGroup12to14
	case age <= 17:
		return AgeGroup15to17
	case age <= 22:
		return AgeGroup18to22
	default:
		return AgeGroupOver22
	}
}

// NormalizeNationalID strips inner whitespace and upper-cases the identifier.
func NormalizeNationalID(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

func normalizeName(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}
