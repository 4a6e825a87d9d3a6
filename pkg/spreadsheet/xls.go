package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/extrame/xls"
)

const xlsCharset = "utf-8"

var errNoWorkbookStream = errors.New("no Workbook stream in compound file")

func readXLS(data []byte) (sheets []Sheet, err error) {
	// The BIFF decoder panics on truncated records instead of returning errors.
	defer func() {
		if p := recover(); p != nil {
			sheets, err = nil, fmt.Errorf("malformed BIFF data: %v", p)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), xlsCharset)
	if err != nil {
		return nil, err
	}
	if wb == nil {
		return nil, errNoWorkbookStream
	}
	sheets = make([]Sheet, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			return nil, fmt.Errorf("sheet %d unreadable", i)
		}
		rows := make([][]string, 0, int(ws.MaxRow)+1)
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := rowAt(ws, r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				cells[c] = row.Col(c)
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, NewGridSheet(ws.Name, rows))
	}
	return sheets, nil
}

// rowAt returns nil for rows the sheet never stored. WorkSheet.Row dereferences
// the missing entry, so the lookup is guarded.
func rowAt(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}
