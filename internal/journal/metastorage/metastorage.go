// Package metastorage implements the journal's production
// collab.IMetaStorage against a raw backing file, issuing page-aligned
// O_DIRECT I/O the way the array's own low-level device access does.
package metastorage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cheolho-kang/poseidonos/internal/journal/collab"
)

// ErrUnaligned is returned when a caller submits a write whose offset or
// length isn't a multiple of the detected page size; O_DIRECT rejects these
// at the syscall layer, but it's cheaper to reject them here with a clearer
// message.
var ErrUnaligned = errors.New("metastorage: offset/length not page-aligned")

// FileStorage backs a journal's log buffer with a single pre-allocated
// file, opened O_DIRECT so meta-page writes bypass the page cache and
// SubmitWrite's completion reflects the media, not a buffered copy.
type FileStorage struct {
	file     *os.File
	pageSize int
}

var _ collab.IMetaStorage = (*FileStorage)(nil)

// Open opens (creating if necessary) path as the backing store for a log
// buffer of totalSize bytes. totalSize is truncated/extended to exactly
// that length.
func Open(path string, totalSize int64) (*FileStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|unix.O_DIRECT, 0o600)
	if err != nil {
		// O_DIRECT is unsupported on some filesystems (tmpfs, overlayfs);
		// fall back to buffered I/O rather than fail the whole journal.
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			return nil, fmt.Errorf("metastorage: open %s: %w", path, err)
		}
	}

	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("metastorage: truncate %s to %d: %w", path, totalSize, err)
	}

	return &FileStorage{file: f, pageSize: unix.Getpagesize()}, nil
}

// PageSize returns the alignment SubmitWrite requires of offset and len(buf).
func (s *FileStorage) PageSize() int { return s.pageSize }

// SubmitWrite issues a pwrite at offset and reports completion on the
// returned channel once the syscall returns. The write runs synchronously
// on a dedicated goroutine so SubmitWrite itself never blocks the caller.
func (s *FileStorage) SubmitWrite(ctx context.Context, offset int64, buf []byte) <-chan error {
	done := make(chan error, 1)

	if offset%int64(s.pageSize) != 0 || len(buf)%s.pageSize != 0 {
		done <- fmt.Errorf("%w: offset=%d len=%d page_size=%d", ErrUnaligned, offset, len(buf), s.pageSize)
		return done
	}

	go func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		n, err := s.file.WriteAt(buf, offset)
		if err != nil {
			done <- fmt.Errorf("metastorage: write at %d: %w", offset, err)
			return
		}
		if n != len(buf) {
			done <- fmt.Errorf("metastorage: short write at %d: wrote %d of %d bytes", offset, n, len(buf))
			return
		}
		done <- nil
	}()

	return done
}

// ReadAt synchronously reads size bytes at offset.
func (s *FileStorage) ReadAt(offset int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("metastorage: read at %d: %w", offset, err)
	}
	return buf, nil
}

// Close releases the backing file descriptor.
func (s *FileStorage) Close() error {
	return s.file.Close()
}
