package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxEntryBytes caps a single extracted entry.
const MaxEntryBytes int64 = 4 << 30

// ErrZipSlip is returned for archive entries that would escape the
// destination directory.
var ErrZipSlip = eris.New("fetcher: archive entry escapes destination")

// ExtractZIP extracts every file from a ZIP archive into destDir and
// returns the extracted paths sorted. __MACOSX metadata is skipped.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		path, err := extractEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if path != "" {
			extracted = append(extracted, path)
		}
	}
	sort.Strings(extracted)
	return extracted, nil
}

// extractEntry writes one archive entry. Directories return "".
func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Wrapf(ErrZipSlip, "entry %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return "", eris.Wrap(err, "fetcher: create directory")
		}
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "fetcher: open entry")
	}
	defer rc.Close() //nolint:errcheck

	n, err := writeFile(destPath, io.LimitReader(rc, MaxEntryBytes+1))
	if err != nil {
		return "", err
	}
	if n > MaxEntryBytes {
		_ = os.Remove(destPath)
		return "", eris.Errorf("fetcher: entry %q exceeds %d bytes", f.Name, MaxEntryBytes)
	}
	return destPath, nil
}
