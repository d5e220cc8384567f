package media

import (
	"fmt"
	"io"
)

const (
	// MaxAssetBytes is the global max accepted payload size.
	MaxAssetBytes int64 = 100 * 1024 * 1024
	// sniffBytes is how much of the payload mimetype detection looks at.
	sniffBytes = 3072
)

// copyWithLimit copies reader into w and rejects payloads larger than maxBytes.
func copyWithLimit(w io.Writer, reader io.Reader, maxBytes int64) (int64, error) {
	if reader == nil {
		return 0, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return 0, fmt.Errorf("max bytes must be greater than 0")
	}
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	written, err := io.Copy(w, limited)
	if err != nil {
		return written, err
	}
	if written > maxBytes {
		return written, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return written, nil
}
