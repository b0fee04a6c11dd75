package captcha

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/big"
	mrand "math/rand/v2"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/layer-3/faucet/core"
	"github.com/layer-3/faucet/ports"
)

// Alphabet is the set codes are drawn from, uniformly.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	DefaultLength  = 6
	DefaultWidth   = 250
	DefaultHeight  = 100
	DefaultStrokes = 10
)

// Generator renders codes as PNG images with noise strokes.
type Generator struct {
	Length      int
	Width       int
	Height      int
	Strokes     int
	StrokeWidth float32
	Scale       int
}

// NewGenerator returns a generator with the 250x100, 6 character defaults
func NewGenerator() ports.Captcha {
	return &Generator{
		Length:      DefaultLength,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		Strokes:     DefaultStrokes,
		StrokeWidth: 2,
		Scale:       3,
	}
}

// Issue generates a fresh code and its image
func (g *Generator) Issue() (string, core.Image, error) {
	code, err := RandomCode(g.Length)
	if err != nil {
		return "", core.Image{}, err
	}

	data, err := g.Render(code)
	if err != nil {
		return "", core.Image{}, err
	}

	return code, core.Image{ContentType: "image/png", Data: data}, nil
}

// Verify is exact, case-sensitive equality
func (g *Generator) Verify(code, input string) bool {
	return code != "" && code == input
}

// RandomCode draws n characters uniformly from Alphabet using crypto/rand.
func RandomCode(n int) (string, error) {
	limit := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate captcha code: %w", err)
		}
		buf[i] = Alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// Render draws the noise strokes, then the code centered on a white canvas.
func (g *Generator) Render(code string) ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	g.drawStrokes(canvas)
	g.drawText(canvas, code)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode captcha: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) drawStrokes(canvas *image.RGBA) {
	z := vector.NewRasterizer(g.Width, g.Height)
	half := g.StrokeWidth / 2

	for i := 0; i < g.Strokes; i++ {
		x0, y0 := float32(mrand.IntN(g.Width+1)), float32(mrand.IntN(g.Height+1))
		x1, y1 := float32(mrand.IntN(g.Width+1)), float32(mrand.IntN(g.Height+1))

		dx, dy := x1-x0, y1-y0
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length == 0 {
			continue
		}
		// Offset both endpoints along the normal to get a quad of StrokeWidth.
		nx, ny := -dy/length*half, dx/length*half

		z.MoveTo(x0+nx, y0+ny)
		z.LineTo(x1+nx, y1+ny)
		z.LineTo(x1-nx, y1-ny)
		z.LineTo(x0-nx, y0-ny)
		z.ClosePath()
	}

	z.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{})
}

func (g *Generator) drawText(canvas *image.RGBA, code string) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	glyphH := metrics.Height.Ceil()
	advance := font.MeasureString(face, "M").Ceil()

	textW := advance * len(code) * g.Scale
	textH := glyphH * g.Scale
	x := (g.Width - textW) / 2
	y := (g.Height - textH) / 2

	for _, ch := range code {
		glyph := image.NewRGBA(image.Rect(0, 0, advance, glyphH))
		d := font.Drawer{
			Dst:  glyph,
			Src:  image.Black,
			Face: face,
			Dot:  fixed.P(0, metrics.Ascent.Ceil()),
		}
		d.DrawString(string(ch))

		jitter := mrand.IntN(2*g.Scale+1) - g.Scale
		dst := image.Rect(x, y+jitter, x+advance*g.Scale, y+jitter+textH)
		draw.NearestNeighbor.Scale(canvas, dst, glyph, glyph.Bounds(), draw.Over, nil)

		x += advance * g.Scale
	}
}
