// Package backup streams a world directory as a gzip-compressed tar archive.
//
// The archive is written through a chunking writer that emits fixed-size
// chunks and flushes the destination after each one when it implements
// http.Flusher, so HTTP clients receive the archive as it is produced.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
)

// DefaultChunkSize is the size of each chunk written to the destination.
const DefaultChunkSize = 64 * 1024

// ErrRootRequired is returned when Archiver.Root is empty.
var ErrRootRequired = errors.New("backup root directory is required")

// Stats summarises a finished archive.
type Stats struct {
	// Files is the number of regular files archived.
	Files int
	// Bytes is the number of compressed bytes written to the destination.
	Bytes int64
}

// Archiver writes the contents of Root.
type Archiver struct {
	Root      string
	ChunkSize int
}

// Stream writes a tar.gz archive of Root to w. Entry names are relative to
// Root. Symlinks are stored as links and never followed.
func (a *Archiver) Stream(ctx context.Context, w io.Writer) (Stats, error) {
	if a.Root == "" {
		return Stats{}, ErrRootRequired
	}
	info, err := os.Stat(a.Root)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to stat backup root: %w", err)
	}
	if !info.IsDir() {
		return Stats{}, fmt.Errorf("backup root %q is not a directory", a.Root)
	}

	size := a.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	cw := newChunkWriter(w, size)
	gz := gzip.NewWriter(cw)
	tw := tar.NewWriter(gz)

	var stats Stats
	walkErr := filepath.WalkDir(a.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(a.Root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		added, err := addEntry(tw, path, filepath.ToSlash(rel), d)
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", rel, err)
		}
		if added {
			stats.Files++
		}
		return nil
	})
	if walkErr != nil {
		return stats, walkErr
	}

	if err := tw.Close(); err != nil {
		return stats, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gz.Close(); err != nil {
		return stats, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	if err := cw.Flush(); err != nil {
		return stats, err
	}
	stats.Bytes = cw.written
	return stats, nil
}

// addEntry writes one tar entry and reports whether it was a regular file.
func addEntry(tw *tar.Writer, path, name string, d fs.DirEntry) (bool, error) {
	info, err := d.Info()
	if err != nil {
		return false, err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return false, err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return false, err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return false, err
	}

	if !info.Mode().IsRegular() {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	// The header carries the size seen at stat time; a file growing while it
	// is read must not overrun it.
	if _, err := io.CopyN(tw, f, hdr.Size); err != nil {
		return false, err
	}
	return true, nil
}

// chunkWriter buffers writes into fixed-size chunks.
type chunkWriter struct {
	dst     io.Writer
	buf     []byte
	written int64
}

func newChunkWriter(dst io.Writer, size int) *chunkWriter {
	return &chunkWriter{dst: dst, buf: make([]byte, 0, size)}
}

func (c *chunkWriter) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		room := cap(c.buf) - len(c.buf)
		take := min(room, len(p))
		c.buf = append(c.buf, p[:take]...)
		p = p[take:]
		n += take

		if len(c.buf) == cap(c.buf) {
			if err := c.Flush(); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

// Flush writes the buffered chunk, possibly short, and flushes dst.
func (c *chunkWriter) Flush() error {
	if len(c.buf) == 0 {
		return nil
	}
	m, err := c.dst.Write(c.buf)
	c.written += int64(m)
	c.buf = c.buf[:0]
	if err != nil {
		return fmt.Errorf("failed to write backup chunk: %w", err)
	}
	if f, ok := c.dst.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
