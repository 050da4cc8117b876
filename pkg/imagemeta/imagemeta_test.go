package imagemeta

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leaf.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func TestInspectPNG(t *testing.T) {
	info, err := Inspect(writePNG(t, 4, 6))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.MIME != "image/png" || info.Width != 4 || info.Height != 6 || !info.Portrait {
		t.Fatalf("unexpected info %+v", info)
	}
	if !strings.Contains(info.Hint(), "4x6") {
		t.Fatalf("unexpected hint %q", info.Hint())
	}
}

func TestInspectMissing(t *testing.T) {
	if _, err := Inspect(filepath.Join(t.TempDir(), "nope.jpg")); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
	if _, err := Inspect(""); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing for empty path, got %v", err)
	}
}

func TestInspectNotImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("just some text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Inspect(path); !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
}
