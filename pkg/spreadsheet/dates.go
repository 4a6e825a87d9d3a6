package spreadsheet

import (
	"math"
	"time"

	"github.com/xuri/excelize/v2"
)

// MaxSerial is 9999-12-31, the last date a 1900-system workbook can represent.
const MaxSerial = 2958465

// SerialToTime converts a 1900-system date serial to a UTC time. The boolean is false
// for values outside 1..MaxSerial.
func SerialToTime(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || serial < 1 || serial > MaxSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
