package tabular

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrOutputLocked is returned when another run holds the output file lock.
var ErrOutputLocked = eris.New("output file is locked by another run")

// WriteCSV writes header and rows to path. Short rows are padded with empty
// strings. The file is written to a temp file in the same directory and
// renamed into place while an exclusive lock on path+".lock" is held. The
// lock file is left in place.
func WriteCSV(path string, header []string, rows [][]string) error {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return eris.Wrap(err, "csv: acquire output lock")
	}
	if !ok {
		return eris.Wrapf(ErrOutputLocked, "csv: %s", path)
	}
	// The lock file stays on disk; unlinking it would let a second run lock
	// a fresh inode while this one still holds the old one.
	defer lock.Unlock() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "csv: create temp file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "csv: chmod temp file")
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "csv: write header")
	}
	line := make([]string, len(header))
	for _, row := range rows {
		for i := range line {
			line[i] = Cell(row, i)
		}
		if err := w.Write(line); err != nil {
			tmp.Close() //nolint:errcheck
			return eris.Wrap(err, "csv: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "csv: flush")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "csv: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrap(err, "csv: rename into place")
	}
	committed = true
	return nil
}

// WriteXLSX is retained for callers that still request Excel output. Excel
// output is no longer produced; convert the CSV instead.
func WriteXLSX(path string, _ []string, _ [][]string) {
	zap.L().Warn("excel output is no longer supported, use CSV output and convert if needed",
		zap.String("path", path),
	)
}
