package card

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"go.uber.org/zap"
)

const (
	DefaultWidth = 800
	padding      = 32
	avatarSize   = 64
	maxCoverH    = 600
	maxTextLines = 24
)

var (
	background  = color.RGBA{0xf7, 0xf8, 0xfa, 0xff}
	foreground  = color.RGBA{0x18, 0x19, 0x1c, 0xff}
	muted       = color.RGBA{0x8a, 0x8f, 0x99, 0xff}
	accent      = color.RGBA{0x00, 0xa1, 0xd6, 0xff}
	repostPanel = color.RGBA{0xe9, 0xeb, 0xef, 0xff}
)

// Renderer draws cards with fogleman/gg. Without a FontPath the built-in fixed-size face is used, which only covers
// ASCII.
type Renderer struct {
	Width    int
	FontPath string
	FontSize float64
	log      *zap.SugaredLogger
}

func New(fontPath string) *Renderer {
	return &Renderer{Width: DefaultWidth, FontPath: fontPath, FontSize: 24, log: zap.S().Named("card")}
}

// Render draws data and returns PNG bytes.
func (r *Renderer) Render(ctx context.Context, data *Data) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("no card data")
	}
	images := r.loadImages(data)
	width := float64(r.Width)

	measure := gg.NewContext(r.Width, 1)
	height := r.draw(measure, data, images, padding, padding, width-2*padding, false) + padding

	dc := gg.NewContext(r.Width, int(math.Ceil(height)))
	dc.SetColor(background)
	dc.Clear()
	r.draw(dc, data, images, padding, padding, width-2*padding, true)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// loadImages decodes every file the card refers to, once. Undecodable files are skipped.
func (r *Renderer) loadImages(data *Data) map[string]image.Image {
	images := make(map[string]image.Image)
	for d := data; d != nil; d = d.Repost {
		for _, path := range append([]string{d.AvatarPath, d.CoverPath}, d.ImagePaths...) {
			if path == "" {
				continue
			}
			if _, ok := images[path]; ok {
				continue
			}
			img, err := gg.LoadImage(path)
			if err != nil {
				r.log.Debugw("skipping image", "path", path, "error", err)
				continue
			}
			images[path] = img
		}
	}
	return images
}

func (r *Renderer) setFont(dc *gg.Context, scale float64) {
	if r.FontPath == "" {
		return
	}
	if err := dc.LoadFontFace(r.FontPath, r.FontSize*scale); err != nil {
		r.log.Debugw("failed to load font", "path", r.FontPath, "error", err)
	}
}

// draw lays out data in the column starting at (x, y) of width w, and returns the y below it. With paint false it
// only measures.
func (r *Renderer) draw(dc *gg.Context, data *Data, images map[string]image.Image, x, y, w float64, paint bool) float64 {
	// Header: avatar, author and time, platform on the right
	headerH := 0.0
	textX := x
	if avatar, ok := images[data.AvatarPath]; ok {
		if paint {
			drawCircleImage(dc, avatar, x, y, avatarSize)
		}
		textX += avatarSize + 16
		headerH = avatarSize
	}
	r.setFont(dc, 1)
	lineH := dc.FontHeight() * 1.5
	if data.AuthorName != "" || data.Time != "" || data.Platform != "" {
		if paint {
			dc.SetColor(foreground)
			dc.DrawString(data.AuthorName, textX, y+lineH)
			dc.SetColor(accent)
			dc.DrawStringAnchored(data.Platform, x+w, y+lineH, 1, 0)
			r.setFont(dc, 0.75)
			dc.SetColor(muted)
			dc.DrawString(data.Time, textX, y+lineH*2)
			r.setFont(dc, 1)
		}
		headerH = math.Max(headerH, lineH*2+8)
	}
	if headerH > 0 {
		y += headerH + 16
	}

	if data.Title != "" {
		r.setFont(dc, 1.25)
		y = drawWrapped(dc, data.Title, x, y, w, foreground, 4, paint)
		y += 8
	}
	if data.Text != "" {
		r.setFont(dc, 1)
		y = drawWrapped(dc, data.Text, x, y, w, foreground, maxTextLines, paint)
		y += 8
	}

	if cover, ok := images[data.CoverPath]; ok {
		y = drawFitted(dc, cover, x, y, w, maxCoverH, paint) + 16
	}

	var thumbs []image.Image
	for _, path := range data.ImagePaths {
		if img, ok := images[path]; ok {
			thumbs = append(thumbs, img)
		}
	}
	if len(thumbs) > 0 {
		gap := 8.0
		cell := (w - gap*float64(len(thumbs)-1)) / float64(len(thumbs))
		rowH := 0.0
		for i, img := range thumbs {
			bottom := drawFitted(dc, img, x+float64(i)*(cell+gap), y, cell, cell, paint)
			rowH = math.Max(rowH, bottom-y)
		}
		y += rowH + 16
	}

	if data.Extra != "" {
		r.setFont(dc, 0.75)
		y = drawWrapped(dc, data.Extra, x, y, w, muted, 4, paint)
		y += 8
	}

	if data.Repost != nil {
		const inset = 16.0
		top := y
		// Measure first so the panel can be painted behind the nested card
		bottom := r.draw(dc, data.Repost, images, x+inset, top+inset, w-2*inset, false) + inset
		if paint {
			dc.SetColor(repostPanel)
			dc.DrawRoundedRectangle(x, top, w, bottom-top, 12)
			dc.Fill()
			r.draw(dc, data.Repost, images, x+inset, top+inset, w-2*inset, true)
		}
		y = bottom + 16
	}
	return y
}

// drawWrapped draws text wrapped to w, at most maxLines lines, returning the y below it.
func drawWrapped(dc *gg.Context, text string, x, y, w float64, c color.Color, maxLines int, paint bool) float64 {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		if strings.TrimSpace(paragraph) == "" {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, wrapLine(dc, paragraph, w)...)
	}
	if len(lines) > maxLines {
		lines = append(lines[:maxLines-1], lines[maxLines-1]+" …")
	}
	lineH := dc.FontHeight() * 1.5
	dc.SetColor(c)
	for _, line := range lines {
		y += lineH
		if paint {
			dc.DrawString(line, x, y)
		}
	}
	return y + lineH*0.25
}

// wrapLine breaks s into lines no wider than w. Words are split on spaces, and text without spaces (such as CJK)
// is split between characters.
func wrapLine(dc *gg.Context, s string, w float64) []string {
	var lines []string
	var current []rune
	flush := func() {
		lines = append(lines, strings.TrimRight(string(current), " "))
		current = current[:0]
	}
	for _, word := range splitWords(s) {
		candidate := append(append([]rune{}, current...), []rune(word)...)
		if width, _ := dc.MeasureString(string(candidate)); width <= w || len(current) == 0 {
			current = candidate
			continue
		}
		flush()
		current = append(current, []rune(strings.TrimLeft(word, " "))...)
	}
	if len(current) > 0 {
		flush()
	}
	return lines
}

// splitWords keeps ASCII words (with their leading space) together and every other character on its own.
func splitWords(s string) []string {
	var words []string
	var word strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			if word.Len() > 0 {
				words = append(words, word.String())
				word.Reset()
			}
			word.WriteRune(r)
		case r < 0x80:
			word.WriteRune(r)
		default:
			if word.Len() > 0 {
				words = append(words, word.String())
				word.Reset()
			}
			words = append(words, string(r))
		}
	}
	if word.Len() > 0 {
		words = append(words, word.String())
	}
	return words
}

// drawFitted scales img to fit within w by maxH, keeping its aspect ratio, and returns the y below it.
func drawFitted(dc *gg.Context, img image.Image, x, y, w, maxH float64, paint bool) float64 {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return y
	}
	scale := math.Min(w/float64(b.Dx()), maxH/float64(b.Dy()))
	if paint {
		dc.Push()
		dc.Translate(x, y)
		dc.Scale(scale, scale)
		dc.DrawImage(img, 0, 0)
		dc.Pop()
	}
	return y + float64(b.Dy())*scale
}

func drawCircleImage(dc *gg.Context, img image.Image, x, y, size float64) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	scale := size / math.Min(float64(b.Dx()), float64(b.Dy()))
	dc.Push()
	dc.DrawCircle(x+size/2, y+size/2, size/2)
	dc.Clip()
	dc.Translate(x, y)
	dc.Scale(scale, scale)
	dc.DrawImage(img, 0, 0)
	dc.ResetClip()
	dc.Pop()
}
