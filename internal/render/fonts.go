package render

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// fontCandidates lists common CJK-capable system fonts checked when no font
// path is configured.
var fontCandidates = []string{
	"/usr/share/fonts/truetype/wqy/wqy-microhei.ttc",
	"/usr/share/fonts/truetype/wqy/wqy-zenhei.ttc",
	"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/noto-cjk/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/google-noto-cjk/NotoSansCJK-Regular.ttc",
	"/usr/share/fonts/truetype/arphic/uming.ttc",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

type faces struct {
	title  font.Face
	body   font.Face
	small  font.Face
	source string
}

func (f faces) Close() {
	for _, face := range []font.Face{f.title, f.body, f.small} {
		if face != nil {
			_ = face.Close()
		}
	}
}

func fallbackFaces() faces {
	return faces{title: basicfont.Face7x13, body: basicfont.Face7x13, small: basicfont.Face7x13, source: "basicfont"}
}

// loadFaces tries path, then each candidate, and returns the first that parses.
func loadFaces(path string) (faces, error) {
	paths := fontCandidates
	if path != "" {
		paths = append([]string{path}, fontCandidates...)
	}
	var errs []error
	for _, candidate := range paths {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if candidate == path {
				errs = append(errs, err)
			}
			continue
		}
		parsed, err := parseFont(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", candidate, err))
			continue
		}
		loaded, err := newFaces(parsed)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", candidate, err))
			continue
		}
		loaded.source = candidate
		return loaded, nil
	}
	return fallbackFaces(), errors.Join(errs...)
}

func parseFont(data []byte) (*opentype.Font, error) {
	if f, err := opentype.Parse(data); err == nil {
		return f, nil
	}
	collection, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, err
	}
	if collection.NumFonts() == 0 {
		return nil, errors.New("empty font collection")
	}
	return collection.Font(0)
}

func newFaces(f *opentype.Font) (faces, error) {
	sizes := []float64{26, 18, 14}
	out := make([]font.Face, 0, len(sizes))
	for _, size := range sizes {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			for _, made := range out {
				_ = made.Close()
			}
			return faces{}, err
		}
		out = append(out, face)
	}
	return faces{title: out[0], body: out[1], small: out[2]}, nil
}
