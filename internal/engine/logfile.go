package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	natomic "github.com/natefinch/atomic"
)

// logFile is an append-only file with an independent read handle, per
// §4.D. The append handle always writes at EOF; the read handle uses
// ReadAt (pread) so reads never depend on — or perturb — a shared file
// position.
type logFile struct {
	path   string
	append *os.File
	read   *os.File
}

// reserveCompactTempPath creates and reserves a uniquely named temp file
// next to logPath for Compact to write into, then closes it immediately
// — the caller reopens it via openLogFile. Using os.CreateTemp (rather
// than a clock-derived name) avoids collisions between compactions that
// land in the same second.
func reserveCompactTempPath(logPath string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(logPath), filepath.Base(logPath)+".compact-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create compact temp file: %w: %w", ErrIO, err)
	}

	path := f.Name()

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close compact temp file %q: %w: %w", path, ErrIO, err)
	}

	return path, nil
}

// openLogFile opens path for append+read, creating an empty file if it
// doesn't exist yet (§4.E Open: "if the file does not exist, create it
// empty").
func openLogFile(path string) (*logFile, error) {
	// Ensure the file exists without truncating it.
	creator, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create log file %q: %w: %w", path, ErrIO, err)
	}

	if err := creator.Close(); err != nil {
		return nil, fmt.Errorf("close log file %q: %w: %w", path, ErrIO, err)
	}

	appendHandle, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file %q for append: %w: %w", path, ErrIO, err)
	}

	readHandle, err := os.OpenFile(path, os.O_RDONLY, 0o600)
	if err != nil {
		_ = appendHandle.Close()
		return nil, fmt.Errorf("open log file %q for read: %w: %w", path, ErrIO, err)
	}

	return &logFile{path: path, append: appendHandle, read: readHandle}, nil
}

// appendBytes writes b at the current end of file and returns the offset
// of its first byte.
func (l *logFile) appendBytes(b []byte) (int64, error) {
	offset, err := l.append.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek log file %q: %w: %w", l.path, ErrIO, err)
	}

	if _, err := l.append.Write(b); err != nil {
		return 0, fmt.Errorf("append to log file %q: %w: %w", l.path, ErrIO, err)
	}

	return offset, nil
}

// readExact reads exactly length bytes starting at offset.
func (l *logFile) readExact(offset, length int64) ([]byte, error) {
	buf := make([]byte, length)

	if _, err := l.read.ReadAt(buf, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("read log file %q at %d: %w: %w", l.path, offset, ErrMalformedFrame, err)
		}

		return nil, fmt.Errorf("read log file %q at %d: %w: %w", l.path, offset, ErrIO, err)
	}

	return buf, nil
}

// readHeaderLine reads bytes up to and including the next '\n' starting
// at offset, returning the line without the trailing newline and the
// offset of the byte immediately after it.
func (l *logFile) readHeaderLine(offset int64) (string, int64, error) {
	const chunkSize = 128

	var line []byte

	buf := make([]byte, chunkSize)
	pos := offset

	for {
		n, err := l.read.ReadAt(buf, pos)
		if n == 0 && err != nil {
			if err == io.EOF {
				return "", 0, fmt.Errorf("header at %d: %w: %w", offset, ErrMalformedHeader, io.EOF)
			}

			return "", 0, fmt.Errorf("read header at %d: %w: %w", offset, ErrIO, err)
		}

		chunk := buf[:n]
		if idx := indexByte(chunk, '\n'); idx >= 0 {
			line = append(line, chunk[:idx]...)
			return string(line), pos + int64(idx) + 1, nil
		}

		line = append(line, chunk...)
		pos += int64(n)

		if err == io.EOF {
			return "", 0, fmt.Errorf("header at %d: %w: %w", offset, ErrMalformedHeader, io.EOF)
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}

	return -1
}

// sync flushes the append handle to stable storage. Called at the end of
// every Put/Delete/Ttl before the operation is considered durable.
func (l *logFile) sync() error {
	if err := l.append.Sync(); err != nil {
		return fmt.Errorf("sync log file %q: %w: %w", l.path, ErrIO, err)
	}

	return nil
}

// size returns the current log file size in bytes.
func (l *logFile) size() (int64, error) {
	info, err := l.append.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat log file %q: %w: %w", l.path, ErrIO, err)
	}

	return info.Size(), nil
}

// truncate shortens the log file to size and syncs, per the recovery
// torn-tail rule in §4.E: subsequent appends begin at the truncation
// point instead of accumulating garbage after it.
func (l *logFile) truncate(size int64) error {
	if err := l.append.Truncate(size); err != nil {
		return fmt.Errorf("truncate log file %q to %d: %w: %w", l.path, size, ErrIO, err)
	}

	return l.sync()
}

// atomicReplace replaces the log file's contents with tmpPath's, such
// that an interrupted replace leaves either the old or the new complete
// file, never a partial one (§4.D). Both handles are closed and reopened
// against the new file before returning.
func (l *logFile) atomicReplace(tmpPath string) error {
	if err := l.append.Close(); err != nil {
		return fmt.Errorf("close append handle for %q: %w: %w", l.path, ErrIO, err)
	}

	if err := l.read.Close(); err != nil {
		return fmt.Errorf("close read handle for %q: %w: %w", l.path, ErrIO, err)
	}

	if err := natomic.ReplaceFile(tmpPath, l.path); err != nil {
		return fmt.Errorf("atomic replace %q with %q: %w: %w", l.path, tmpPath, ErrIO, err)
	}

	appendHandle, err := os.OpenFile(l.path, os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("reopen log file %q for append: %w: %w", l.path, ErrIO, err)
	}

	readHandle, err := os.OpenFile(l.path, os.O_RDONLY, 0o600)
	if err != nil {
		_ = appendHandle.Close()
		return fmt.Errorf("reopen log file %q for read: %w: %w", l.path, ErrIO, err)
	}

	l.append = appendHandle
	l.read = readHandle

	return nil
}

// close releases both handles. Safe to call once; callers must not reuse
// the logFile afterward.
func (l *logFile) close() error {
	appendErr := l.append.Close()
	readErr := l.read.Close()

	if appendErr != nil {
		return fmt.Errorf("close log file %q: %w: %w", l.path, ErrIO, appendErr)
	}

	if readErr != nil {
		return fmt.Errorf("close log file %q: %w: %w", l.path, ErrIO, readErr)
	}

	return nil
}
