package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutputExists is returned when the output file exists and Force is off.
var ErrOutputExists = errors.New("output file exists")

// OutputSuffix is inserted before the extension of the default output name.
const OutputSuffix = ".dedup.json"

// DefaultOutputPath returns <stem>.dedup.json next to input.
func DefaultOutputPath(input string) string {
	dir, base := filepath.Split(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(dir, stem+OutputSuffix)
}

// Writer writes the deduplicated export.
type Writer struct {
	// Force allows an existing output file to be replaced.
	Force bool
	// DryRun skips writing entirely.
	DryRun bool
}

// Check fails with ErrOutputExists if path exists and may not be replaced.
// Callers run it before any processing so a refused run does no work.
func (w Writer) Check(path string) error {
	if w.DryRun || w.Force {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrOutputExists, path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("check output: %w", err)
	}
}

// Write stores data at path, going through a temporary file in the same
// directory so a failed write never leaves a truncated export behind.
// The file is created owner-only since exports hold secrets.
func (w Writer) Write(path string, data []byte) error {
	if w.DryRun {
		return nil
	}
	if err := w.Check(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
