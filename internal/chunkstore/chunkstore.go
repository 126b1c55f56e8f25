// Package chunkstore writes raw media fragments to a filesystem tree
// partitioned by media kind and session: <root>/<kind>/<session>/<file>.
package chunkstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/dkeye/vlink/internal/domain"
)

// Store is append-only: existing chunk files are never rewritten.
type Store struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root, now: time.Now}
}

// NewOS returns a Store rooted at an absolute directory on the local disk.
func NewOS(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return New(afero.NewOsFs(), abs), nil
}

func (s *Store) Fs() afero.Fs { return s.fs }

func (s *Store) Root() string { return s.root }

// Written describes a flushed chunk file.
type Written struct {
	Path string
	Size int64
}

// Write flushes data to a new file whose name embeds kind, session, seq and
// a nanosecond wall-clock stamp, so resubmitted sequence numbers never collide.
func (s *Store) Write(session domain.SessionID, kind domain.MediaKind, seq int64, data []byte) (Written, error) {
	if err := domain.ValidateSessionID(string(session)); err != nil {
		return Written{}, err
	}
	dir := filepath.Join(s.root, string(kind), string(session))
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return Written{}, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	ext := Extension(data)
	var path string
	for stamp := s.now().UnixNano(); ; stamp++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%s_%d_%d%s", kind, session, seq, stamp, ext))
		f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return Written{}, fmt.Errorf("create %s: %w", path, err)
		}
		n, werr := f.Write(data)
		cerr := f.Close()
		if werr != nil {
			return Written{}, fmt.Errorf("write %s: %w", path, werr)
		}
		if cerr != nil {
			return Written{}, fmt.Errorf("close %s: %w", path, cerr)
		}
		return Written{Path: path, Size: int64(n)}, nil
	}
}

// Exists reports whether a regular file is present at path.
func (s *Store) Exists(path string) bool {
	fi, err := s.fs.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Size returns the current size of the file at path.
func (s *Store) Size(path string) (int64, error) {
	fi, err := s.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Extension sniffs the container of a fragment; anything that is not a
// recognised audio/video container gets ".bin".
func Extension(data []byte) string {
	mt := mimetype.Detect(data)
	media := strings.HasPrefix(mt.String(), "audio/") ||
		strings.HasPrefix(mt.String(), "video/") ||
		mt.Is("application/ogg")
	if !media || mt.Extension() == "" {
		return ".bin"
	}
	return strings.ToLower(mt.Extension())
}
