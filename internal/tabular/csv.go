package tabular

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LoadCSV reads a CSV file. The first record is the header.
func LoadCSV(ctx context.Context, path, charset string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open file")
	}
	defer f.Close() //nolint:errcheck

	r, err := decodeReader(f, charset)
	if err != nil {
		return nil, err
	}

	rowCh, errCh := StreamCSV(ctx, r)

	t := &Table{Format: FormatCSV}
	first := true
	for row := range rowCh {
		if first {
			t.Header = row
			first = false
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if first {
		return nil, eris.Errorf("csv: %s has no header row", path)
	}
	return t, nil
}

// StreamCSV reads CSV records from r and sends them to a channel. Both
// channels are closed when processing completes; at most one error is sent.
func StreamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1 // allow ragged rows
		reader.LazyQuotes = true

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// decodeReader transcodes r from charset to UTF-8, stripping any BOM.
func decodeReader(r io.Reader, charset string) (io.Reader, error) {
	if charset == "" {
		charset = "utf-8"
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: unsupported charset %q", charset)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}
