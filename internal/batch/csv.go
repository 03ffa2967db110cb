package batch

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures StreamCSV.
type CSVOptions struct {
	Delimiter rune // 0 sniffs ',' ';' or tab from the first line
	Comment   rune // comment character (0 = none)
}

// StreamCSV reads CSV records from r and sends them, header included, on
// the row channel. Both channels are closed when reading completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		br := bufio.NewReader(r)
		if opts.Delimiter == 0 {
			opts.Delimiter = sniffDelimiter(br)
		}
		reader := csv.NewReader(br)
		reader.Comma = opts.Delimiter
		reader.Comment = opts.Comment
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "batch: csv context cancelled")
				return
			}
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "batch: csv read row")
				return
			}
			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "batch: csv context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// sniffDelimiter picks the most frequent of ',' ';' and tab on the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(4096)
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(string(line), string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func readCSVFile(ctx context.Context, path string, opts ReadOptions) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return readCSV(ctx, f, opts)
}

func readCSV(ctx context.Context, r io.Reader, opts ReadOptions) ([]Point, error) {
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{Comment: '#'})

	var (
		cols   columns
		points []Point
		header = true
		rowNum int
		colErr error
	)
	for record := range rowCh {
		if colErr != nil {
			continue
		}
		if header {
			header = false
			cols, colErr = findColumns(record, opts)
			continue
		}
		rowNum++
		if blank(record) {
			continue
		}
		points = append(points, cols.point(rowNum, record))
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if colErr != nil {
		return nil, colErr
	}
	if header {
		return nil, eris.Wrap(ErrMissingColumn, "batch: csv has no header")
	}
	return points, nil
}

// writeCSV writes the result header and one record per row.
func writeCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultHeader); err != nil {
		return eris.Wrap(err, "batch: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return eris.Wrap(err, "batch: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "batch: flush csv")
}
