package media

import (
	"io"
	"os"
)

// FileSource opens tracks from the local filesystem.
type FileSource struct{}

func (FileSource) Open(path string) (io.ReadSeekCloser, error) {
	return os.Open(path)
}
