package testsupport

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// WriteJPEG writes a small solid-colour JPEG to path.
func WriteJPEG(t testing.TB, path string) {
	t.Helper()
	writeImage(t, path, func(f *os.File) error {
		return jpeg.Encode(f, solid(16, 24, color.RGBA{R: 200, G: 40, B: 40, A: 255}), nil)
	})
}

// WritePNG writes a small solid-colour PNG to path.
func WritePNG(t testing.TB, path string) {
	t.Helper()
	writeImage(t, path, func(f *os.File) error {
		return png.Encode(f, solid(16, 24, color.RGBA{R: 40, G: 40, B: 200, A: 255}))
	})
}

// JPEGBytes returns an encoded JPEG suitable for serving from httptest.
func JPEGBytes(t testing.TB) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.jpg")
	WriteJPEG(t, path)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

// WriteGallery fills dir with count numbered JPEG pages (1.jpg, 2.jpg, ...).
func WriteGallery(t testing.TB, dir string, count int) {
	t.Helper()
	for i := 1; i <= count; i++ {
		WriteJPEG(t, filepath.Join(dir, strconv.Itoa(i)+".jpg"))
	}
}

func writeImage(t testing.TB, path string, encode func(*os.File) error) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := encode(f); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}
