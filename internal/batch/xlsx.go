package batch

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// resultSheet names the sheet written by writeXLSX.
const resultSheet = "Assessments"

func readXLSX(path string, opts ReadOptions) ([]Point, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open xlsx %s", path)
	}
	sheet, err := getSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Wrapf(ErrMissingColumn, "batch: sheet %q is empty", sheet.Name)
	}

	cols, err := findColumns(rowToStrings(sheet.Rows[0]), opts)
	if err != nil {
		return nil, err
	}
	var points []Point
	for i, row := range sheet.Rows[1:] {
		record := rowToStrings(row)
		if blank(record) {
			continue
		}
		points = append(points, cols.point(i+1, record))
	}
	return points, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("batch: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("batch: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// writeXLSX writes rows to a single-sheet workbook. NDVI and coordinates are
// numeric cells; missing NDVI is left blank.
func writeXLSX(w io.Writer, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(resultSheet)
	if err != nil {
		return eris.Wrap(err, "batch: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range ResultHeader {
		header.AddCell().SetString(h)
	}
	for _, r := range rows {
		xr := sheet.AddRow()
		xr.AddCell().SetString(r.Point.ID)
		xr.AddCell().SetFloat(r.Point.Coordinate.Lat)
		xr.AddCell().SetFloat(r.Point.Coordinate.Lon)
		ndvi := xr.AddCell()
		if r.Outcome != nil && r.Outcome.NDVI != nil {
			ndvi.SetFloat(*r.Outcome.NDVI)
		}
		for _, v := range r.Record()[4:] {
			xr.AddCell().SetString(v)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "batch: write xlsx")
	}
	return nil
}
