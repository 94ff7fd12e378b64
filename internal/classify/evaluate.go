package classify

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/webp"

	"curator/internal/gallery"
	"curator/internal/logging"
)

// ErrClassifyCanceled reports that the token was signalled mid-run.
var ErrClassifyCanceled = errors.New("classification canceled")

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
}

// Judge asks a backend about one image.
type Judge func(ctx context.Context, path string) (Response, error)

// Evaluate runs judge over every image in dir and returns the share of
// flagged images as a 0..100 score. Unreadable images still count toward the
// total but are never flagged.
func Evaluate(token *CancelToken, dir string, judge Judge, rules Rules, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	files, err := listImages(dir)
	if err != nil {
		return Result{}, err
	}
	total := len(files)
	if total == 0 {
		return Result{}, nil
	}

	ctx, cancel := token.Context()
	defer cancel()

	flagged := 0
	for _, path := range files {
		if token.Signalled() {
			return Result{}, ErrClassifyCanceled
		}
		if err := validateImage(path); err != nil {
			logger.Warn("skipping unreadable image",
				logging.String("file", filepath.Base(path)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "image_invalid"),
				logging.String(logging.FieldErrorHint, "asset may be truncated"),
				logging.String(logging.FieldImpact, "image counted as not flagged"),
			)
			continue
		}
		resp, err := judge(ctx, path)
		if err != nil {
			if token.Signalled() {
				return Result{}, ErrClassifyCanceled
			}
			logger.Warn("image classification failed",
				logging.String("file", filepath.Base(path)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "image_classify_failed"),
				logging.String(logging.FieldErrorHint, "check classifier backend logs"),
				logging.String(logging.FieldImpact, "image counted as not flagged"),
			)
			continue
		}
		if rules.Flagged(resp) {
			flagged++
		}
	}

	return Result{
		Score: float64(flagged) / float64(total) * 100,
		Stats: gallery.Stats{Total: total, Flagged: flagged},
	}, nil
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read asset dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func validateImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _, err = image.DecodeConfig(f)
	return err
}
