package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"curator/internal/config"
	"curator/internal/fileutil"
	"curator/internal/gallery"
	"curator/internal/logging"
)

const (
	padding     = 24
	headerH     = 96
	rowH        = 228
	thumbW      = 150
	thumbH      = 204
	badgeSize   = 40
	barH        = 12
	titleLines  = 3
	defaultTags = 6
)

var (
	colorBackground  = color.RGBA{R: 30, G: 30, B: 35, A: 255}
	colorRow         = color.RGBA{R: 45, G: 45, B: 52, A: 255}
	colorPlaceholder = color.RGBA{R: 60, G: 60, B: 65, A: 255}
	colorText        = color.RGBA{R: 240, G: 240, B: 240, A: 255}
	colorMuted       = color.RGBA{R: 160, G: 160, B: 170, A: 255}
	colorAccent      = color.RGBA{R: 237, G: 37, B: 83, A: 255}
	colorBarTrack    = color.RGBA{R: 70, G: 70, B: 78, A: 255}
)

// Renderer produces summary card images.
type Renderer struct {
	cfg    config.Render
	logger *slog.Logger
	now    func() time.Time

	once  sync.Once
	faces faces
}

// New constructs a Renderer. Fonts are loaded on first use.
func New(cfg config.Render, logger *slog.Logger) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 90
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = defaultTags
	}
	return &Renderer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "render"),
		now:    time.Now,
	}
}

// Close releases loaded font faces.
func (r *Renderer) Close() {
	if r == nil {
		return
	}
	r.faces.Close()
}

func (r *Renderer) loadFaces() faces {
	r.once.Do(func() {
		loaded, err := loadFaces(r.cfg.FontPath)
		if err != nil || loaded.source == "basicfont" {
			r.logger.Warn("opentype font unavailable; using built-in bitmap font",
				logging.Error(err),
				logging.String(logging.FieldEventType, "render_font_fallback"),
				logging.String(logging.FieldErrorHint, "set render.font_path to a CJK-capable font"),
				logging.String(logging.FieldImpact, "non-latin titles render as placeholders"),
			)
		} else {
			r.logger.Debug("loaded font", logging.String("path", loaded.source))
		}
		r.faces = loaded
	})
	return r.faces
}

// Render draws items, in order, onto one card and writes it to outputPath as
// JPEG. It returns "" without writing anything when items is empty.
func (r *Renderer) Render(items []*gallery.Item, outputPath string) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	if strings.TrimSpace(outputPath) == "" {
		return "", errors.New("render: output path is empty")
	}
	fc := r.loadFaces()

	width := r.cfg.Width
	height := headerH + len(items)*rowH + padding
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(canvas, canvas.Bounds(), colorBackground)

	r.drawHeader(canvas, fc, len(items))
	for i, item := range items {
		top := headerH + i*rowH
		r.drawRow(canvas, fc, i+1, item, image.Rect(padding, top, width-padding, top+rowH-padding/2))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: r.cfg.Quality}); err != nil {
		return "", fmt.Errorf("encode card: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if _, err := fileutil.WriteAtomic(outputPath, &buf); err != nil {
		return "", fmt.Errorf("write card: %w", err)
	}
	r.logger.Info("rendered summary card",
		logging.String("path", outputPath),
		logging.Int("items", len(items)),
		logging.String(logging.FieldEventType, "render_complete"),
	)
	return outputPath, nil
}

func (r *Renderer) drawHeader(dst *image.RGBA, fc faces, count int) {
	title := "Curator ranking"
	drawText(dst, fc.title, colorText, padding, padding+ascent(fc.title), title)
	sub := fmt.Sprintf("%s · top %d", r.now().Format("2006-01-02"), count)
	drawText(dst, fc.small, colorMuted, padding, padding+ascent(fc.title)+lineHeight(fc.small)+8, sub)
	fill(dst, image.Rect(padding, headerH-padding/2-2, dst.Bounds().Dx()-padding, headerH-padding/2), colorAccent)
}

func (r *Renderer) drawRow(dst *image.RGBA, fc faces, rank int, item *gallery.Item, box image.Rectangle) {
	fill(dst, box, colorRow)

	thumb := image.Rect(box.Min.X+8, box.Min.Y+8, box.Min.X+8+thumbW, box.Min.Y+8+thumbH)
	if thumb.Max.Y > box.Max.Y-8 {
		thumb.Max.Y = box.Max.Y - 8
	}
	if err := drawCover(dst, thumb, item.CoverPath); err != nil {
		fill(dst, thumb, colorPlaceholder)
		if item.CoverPath != "" {
			r.logger.Debug("cover unavailable", logging.String(logging.FieldItemID, item.ID), logging.Error(err))
		}
	}

	badge := image.Rect(thumb.Min.X, thumb.Min.Y, thumb.Min.X+badgeSize, thumb.Min.Y+badgeSize)
	fill(dst, badge, colorAccent)
	label := fmt.Sprintf("%d", rank)
	lw := font.MeasureString(fc.body, label).Ceil()
	drawText(dst, fc.body, colorText, badge.Min.X+(badgeSize-lw)/2, badge.Min.Y+(badgeSize+ascent(fc.body))/2-2, label)

	textX := thumb.Max.X + 16
	textW := box.Max.X - 12 - textX
	y := box.Min.Y + 12 + ascent(fc.body)
	for _, line := range wrap(fc.body, item.DisplayTitle(), textW, titleLines) {
		drawText(dst, fc.body, colorText, textX, y, line)
		y += lineHeight(fc.body)
	}

	y += 6
	drawText(dst, fc.small, colorMuted, textX, y, "#"+item.ID)
	y += lineHeight(fc.small) + 4
	if tags := limitTags(item.Tags, r.cfg.MaxTags); tags != "" {
		for _, line := range wrap(fc.small, tags, textW, 2) {
			drawText(dst, fc.small, colorMuted, textX, y, line)
			y += lineHeight(fc.small)
		}
	}

	score := item.Score()
	barTop := box.Max.Y - 16 - barH - lineHeight(fc.small)
	track := image.Rect(textX, barTop, textX+textW, barTop+barH)
	fill(dst, track, colorBarTrack)
	filled := int(float64(track.Dx()) * clamp(score/100))
	fill(dst, image.Rect(track.Min.X, track.Min.Y, track.Min.X+filled, track.Max.Y), colorAccent)

	caption := fmt.Sprintf("%.1f%%", score)
	if stats, ok := item.Stats(); ok {
		caption = fmt.Sprintf("%.1f%% (%d/%d)", score, stats.Flagged, stats.Total)
	}
	drawText(dst, fc.small, colorText, textX, track.Max.Y+6+ascent(fc.small), caption)
}

// drawCover scales the image at path to fit inside rect, centred.
func drawCover(dst *image.RGBA, rect image.Rectangle, path string) error {
	if path == "" {
		return errors.New("no cover")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return err
	}
	fill(dst, rect, colorPlaceholder)
	target := fitRect(src.Bounds(), rect)
	draw.CatmullRom.Scale(dst, target, src, src.Bounds(), draw.Over, nil)
	return nil
}

// fitRect returns the largest rectangle with src's aspect ratio centred in box.
func fitRect(src, box image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	bw, bh := box.Dx(), box.Dy()
	if sw <= 0 || sh <= 0 {
		return box
	}
	w, h := bw, sh*bw/sw
	if h > bh {
		w, h = sw*bh/sh, bh
	}
	x := box.Min.X + (bw-w)/2
	y := box.Min.Y + (bh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func limitTags(tags []string, limit int) string {
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return strings.Join(tags, " · ")
}

// wrap breaks text into at most maxLines lines no wider than maxWidth pixels.
// The last line gets an ellipsis when text was cut.
func wrap(face font.Face, text string, maxWidth, maxLines int) []string {
	text = strings.TrimSpace(text)
	if text == "" || maxWidth <= 0 || maxLines <= 0 {
		return nil
	}
	limit := fixed.I(maxWidth)
	var lines []string
	var current []rune
	for _, r := range text {
		candidate := append(current, r)
		if font.MeasureString(face, string(candidate)) <= limit || len(current) == 0 {
			current = candidate
			continue
		}
		lines = append(lines, string(current))
		current = []rune{r}
		if len(lines) == maxLines {
			break
		}
	}
	if len(lines) < maxLines && len(current) > 0 {
		lines = append(lines, string(current))
		current = nil
	}
	if len(current) > 0 || len(lines) > maxLines {
		lines = lines[:maxLines]
		last := []rune(lines[maxLines-1])
		for len(last) > 0 && font.MeasureString(face, string(last)+"…") > limit {
			last = last[:len(last)-1]
		}
		lines[maxLines-1] = string(last) + "…"
	}
	return lines
}

func drawText(dst *image.RGBA, face font.Face, c color.Color, x, y int, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func fill(dst *image.RGBA, rect image.Rectangle, c color.Color) {
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

func ascent(face font.Face) int {
	return face.Metrics().Ascent.Ceil()
}

func lineHeight(face font.Face) int {
	h := face.Metrics().Height.Ceil()
	if h <= 0 {
		h = ascent(face) + face.Metrics().Descent.Ceil()
	}
	return h + 4
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
