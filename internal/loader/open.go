package loader

import (
	"compress/gzip"
	"io"
	"os"
	"strings"

	"blastsum/internal/utils"
)

// Open returns a reader for path, transparently decompressing .gz files.
// Failures are IOErrors.
func Open(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, utils.NewIOError(path, err)
	}
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, utils.NewIOError(path, err)
		}
		return struct {
			io.Reader
			io.Closer
		}{Reader: gr, Closer: fh}, nil
	}
	return fh, nil
}
