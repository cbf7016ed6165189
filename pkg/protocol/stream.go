package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// ChunkSize bounds each raw write and read of a bulk transfer.
const ChunkSize = 64 * 1024

// SendStream writes an 8-byte big-endian byte count followed by exactly
// size bytes read from src, in chunks of at most ChunkSize.
func SendStream(w io.Writer, src io.Reader, size int64) error {
	if size < 0 {
		return fmt.Errorf("protocol: negative stream size %d", size)
	}
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(size))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("protocol: write stream size: %w", err)
	}

	buf := make([]byte, ChunkSize)
	for remaining := size; remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			return fmt.Errorf("protocol: read stream source: %w", err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("protocol: write stream chunk: %w", err)
		}
		remaining -= n
	}
	return nil
}

// RecvStream reads a byte count and then exactly that many bytes into dst.
// A declared count above limit is rejected when limit > 0. It returns the
// number of bytes received.
func RecvStream(r io.Reader, dst io.Writer, limit int64) (int64, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, fmt.Errorf("%w: read stream size: %w", ErrProtocol, err)
	}
	declared := binary.BigEndian.Uint64(hdr[:])
	if declared > math.MaxInt64 || (limit > 0 && int64(declared) > limit) {
		return 0, fmt.Errorf("%w: stream size %d exceeds limit", ErrProtocol, declared)
	}
	size := int64(declared)

	buf := make([]byte, ChunkSize)
	var got int64
	for got < size {
		n := int64(len(buf))
		if size-got < n {
			n = size - got
		}
		read, err := io.ReadFull(r, buf[:n])
		if read > 0 {
			if _, werr := dst.Write(buf[:read]); werr != nil {
				return got, fmt.Errorf("protocol: write stream sink: %w", werr)
			}
			got += int64(read)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return got, fmt.Errorf("%w: stream ended after %d of %d bytes: %w", ErrProtocol, got, size, err)
		}
	}
	return got, nil
}

// SendFile streams the file at path. It returns the number of bytes sent.
func SendFile(w io.Writer, path string) (int64, error) {
	f, err := os.Open(path) //nolint:gosec // path resolved by caller
	if err != nil {
		return 0, fmt.Errorf("protocol: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("protocol: stat %s: %w", path, err)
	}
	if err := SendStream(w, f, info.Size()); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RecvFile receives a stream into path. Data lands in a temporary file in
// the same directory and is renamed into place only when the full declared
// count arrived.
func RecvFile(r io.Reader, path string, limit int64) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".recv-*")
	if err != nil {
		return 0, fmt.Errorf("protocol: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	n, err := RecvStream(r, tmp, limit)
	if err != nil {
		cleanup()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("protocol: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return n, fmt.Errorf("protocol: rename %s: %w", path, err)
	}
	return n, nil
}
