package snapshot

import (
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/logger"
	"github.com/bryanchriswhite/DualCam/internal/memory"
	"github.com/spf13/afero"
)

const (
	filePrefix = "IMG-"
	fileExt    = ".nv12"
	timeLayout = "2006-01-02-15-04-05.000"
)

// ErrInvalidName is returned for names that are not snapshot file names.
var ErrInvalidName = errors.New("snapshot: invalid name")

// IOError is a failed snapshot file operation. It never affects capture
// state.
type IOError struct {
	Op   string // open, write, close, read
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("snapshot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Record describes one stored snapshot.
type Record struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps snapshots in one directory of an afero filesystem.
type Store struct {
	fs     afero.Fs
	dir    string
	layout camera.Layout
}

// NewStore creates dir if needed and returns a store for frames of layout.
func NewStore(fs afero.Fs, dir string, layout camera.Layout) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Store{fs: fs, dir: dir, layout: layout}, nil
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// FileName returns the snapshot name for a capture taken at t, in local
// time with millisecond precision.
func FileName(t time.Time) string {
	return filePrefix + t.Local().Format(timeLayout) + fileExt
}

// Save writes frame as a new snapshot named after now. An existing file is
// never overwritten: a name collision is an open error matching
// os.ErrExist. A failed close is reported even when every write succeeded.
func (s *Store) Save(frame *memory.Block, now time.Time) (Record, error) {
	name := FileName(now)
	path := filepath.Join(s.dir, name)
	if frame == nil {
		return Record{}, &IOError{Op: "write", Path: path, Err: errors.New("no frame")}
	}

	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return Record{}, &IOError{Op: "open", Path: path, Err: err}
	}

	n, werr := WriteNV12(f, frame.Bytes(), s.layout)
	cerr := f.Close()
	if werr != nil {
		return Record{}, &IOError{Op: "write", Path: path, Err: werr}
	}
	if cerr != nil {
		return Record{}, &IOError{Op: "close", Path: path, Err: cerr}
	}

	logger.WithComponent("snapshot").Info().
		Str("path", path).
		Int64("bytes", n).
		Msg("Snapshot saved")

	return Record{
		Name:      name,
		Size:      n,
		Width:     s.layout.Width,
		Height:    s.layout.Height,
		CreatedAt: now,
	}, nil
}

// List returns every stored snapshot, newest first.
func (s *Store) List() ([]Record, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, &IOError{Op: "read", Path: s.dir, Err: err}
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseName(e.Name())
		if !ok {
			continue
		}
		records = append(records, Record{
			Name:      e.Name(),
			Size:      e.Size(),
			Width:     s.layout.Width,
			Height:    s.layout.Height,
			CreatedAt: ts,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name > records[j].Name
	})
	return records, nil
}

// Open reads a snapshot back.
func (s *Store) Open(name string) ([]byte, error) {
	if _, ok := parseName(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := filepath.Join(s.dir, name)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// ConvertPNG decodes a stored snapshot and writes it to dst as PNG.
func (s *Store) ConvertPNG(name string, dst io.Writer) error {
	data, err := s.Open(name)
	if err != nil {
		return err
	}
	img, err := DecodeNV12(data, s.layout.Width, s.layout.Height)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	if err := png.Encode(dst, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return nil
}

func parseName(name string) (time.Time, bool) {
	if strings.ContainsAny(name, `/\`) || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	t, err := time.ParseInLocation(timeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
