package extract

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const maxColumns = 1000

// XLSX yields one segment per non-empty cell so entities never straddle
// cells.
type XLSX struct{}

func (XLSX) Extract(r io.Reader) ([]Segment, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var segs []Segment
	for _, sheet := range f.GetSheetList() {
		rows, err := f.Rows(sheet)
		if err != nil {
			continue
		}
		row := 0
		for rows.Next() {
			row++
			cols, err := rows.Columns()
			if err != nil {
				break
			}
			for c, value := range cols {
				if c >= maxColumns {
					break
				}
				if value == "" {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(c+1, row)
				if err != nil {
					continue
				}
				segs = append(segs, Segment{Location: sheet + "!" + cell, Text: value})
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return segs, nil
}
