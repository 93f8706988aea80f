package snapshot

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/bryanchriswhite/DualCam/internal/camera"
	"github.com/bryanchriswhite/DualCam/internal/memory"
	"github.com/spf13/afero"
)

var vga = camera.Layout{Width: 640, Height: 480, Pitch: 768}

// paddedFrame marks every visible byte with its row number and every
// padding byte with 0xFF.
func paddedFrame(l camera.Layout) []byte {
	frame := make([]byte, l.FrameSize())
	for row := 0; row < l.Rows(); row++ {
		for col := 0; col < l.Pitch; col++ {
			v := byte(row)
			if col >= l.Width {
				v = 0xFF
			}
			frame[row*l.Pitch+col] = v
		}
	}
	return frame
}

// TestWriteNV12DropsPadding checks 720 rows of 640 bytes are written from a
// frame with a 768 byte pitch.
func TestWriteNV12DropsPadding(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteNV12(&buf, paddedFrame(vga), vga)
	if err != nil {
		t.Fatalf("WriteNV12() failed: %v", err)
	}
	if n != 460800 || buf.Len() != 460800 {
		t.Fatalf("wrote %d bytes (buffer %d), want 460800", n, buf.Len())
	}

	out := buf.Bytes()
	for row := 0; row < 720; row++ {
		line := out[row*640 : (row+1)*640]
		for col, v := range line {
			if v != byte(row) {
				t.Fatalf("row %d col %d = %#x, want %#x", row, col, v, byte(row))
			}
		}
	}
}

func TestWriteNV12ShortFrame(t *testing.T) {
	if _, err := WriteNV12(&bytes.Buffer{}, make([]byte, 100), vga); err == nil {
		t.Fatal("expected error for short frame")
	}
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 123_000_000, time.Local)
	if got, want := FileName(ts), "IMG-2024-03-09-14-05-07.123.nv12"; got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}

func TestStoreSaveListOpen(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewStore(fs, "/snaps", vga)
	if err != nil {
		t.Fatal(err)
	}

	t0 := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	frame := paddedFrame(vga)
	for i := 0; i < 3; i++ {
		rec, err := store.Save(memory.NewBlock(frame, 1), t0.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		if rec.Size != 460800 {
			t.Errorf("record size = %d", rec.Size)
		}
	}
	_ = afero.WriteFile(fs, "/snaps/notes.txt", []byte("x"), 0o644)

	records, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records", len(records))
	}
	if records[0].Name != "IMG-2024-03-09-14-05-09.000.nv12" {
		t.Errorf("newest = %s", records[0].Name)
	}
	if !records[2].CreatedAt.Equal(t0) {
		t.Errorf("oldest created at %v, want %v", records[2].CreatedAt, t0)
	}

	data, err := store.Open(records[0].Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 460800 {
		t.Errorf("Open() returned %d bytes", len(data))
	}

	if _, err := store.Open("../etc/passwd"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Open(traversal) = %v, want ErrInvalidName", err)
	}
	var ioErr *IOError
	if _, err := store.Open("IMG-2000-01-01-00-00-00.000.nv12"); !errors.As(err, &ioErr) || ioErr.Op != "read" {
		t.Errorf("Open(missing) = %v, want read IOError", err)
	}
}

func TestConvertPNG(t *testing.T) {
	store, err := NewStore(afero.NewMemMapFs(), "/snaps", vga)
	if err != nil {
		t.Fatal(err)
	}
	frame := make([]byte, vga.FrameSize())
	for i := range frame {
		frame[i] = 128
	}
	rec, err := store.Save(memory.NewBlock(frame, 1), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := store.ConvertPNG(rec.Name, &buf); err != nil {
		t.Fatalf("ConvertPNG() failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 640 || b.Dy() != 480 {
		t.Errorf("png size = %v", b)
	}
}

type closeFailFs struct {
	afero.Fs
}

func (fs closeFailFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return closeFailFile{f}, nil
}

type closeFailFile struct {
	afero.File
}

var errDiskFull = errors.New("disk full")

func (f closeFailFile) Close() error {
	_ = f.File.Close()
	return errDiskFull
}

// TestSaveReportsCloseFailure checks a failed close is an error even though
// every row was written.
func TestSaveReportsCloseFailure(t *testing.T) {
	store, err := NewStore(closeFailFs{afero.NewMemMapFs()}, "/snaps", vga)
	if err != nil {
		t.Fatal(err)
	}

	_, err = store.Save(memory.NewBlock(paddedFrame(vga), 1), time.Now())
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Save() = %v, want *IOError", err)
	}
	if ioErr.Op != "close" || !errors.Is(err, errDiskFull) {
		t.Errorf("IOError = %+v", ioErr)
	}
}

// TestSaveKeepsExistingFile checks a second save with the same timestamp
// fails instead of replacing the first file.
func TestSaveKeepsExistingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewStore(fs, "/snaps", vga)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)

	first, err := store.Save(memory.NewBlock(paddedFrame(vga), 1), now)
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Save(memory.NewBlock(make([]byte, vga.FrameSize()), 1), now)
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "open" || !errors.Is(err, os.ErrExist) {
		t.Fatalf("second Save() = %v, want open IOError for an existing file", err)
	}

	data, err := store.Open(first.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 460800 || data[640] != 1 {
		t.Errorf("first snapshot was modified")
	}
}

func TestSaveOpenFailure(t *testing.T) {
	store := &Store{fs: afero.NewReadOnlyFs(afero.NewMemMapFs()), dir: "/snaps", layout: vga}
	_, err := store.Save(memory.NewBlock(paddedFrame(vga), 1), time.Now())
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "open" {
		t.Fatalf("Save() = %v, want open IOError", err)
	}
}

func TestDecodeNV12Gray(t *testing.T) {
	data := make([]byte, FileSize(4, 2))
	for i := range data {
		data[i] = 128
	}
	img, err := DecodeNV12(data, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	c := img.RGBAAt(3, 1)
	for _, v := range []uint8{c.R, c.G, c.B} {
		if v < 110 || v > 115 {
			t.Errorf("decoded pixel = %+v, want gray near 113", c)
			break
		}
	}
	if _, err := DecodeNV12(data[:5], 4, 2); err == nil {
		t.Error("expected error for short data")
	}
}
