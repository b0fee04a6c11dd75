package captcha

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssue(t *testing.T) {
	g := NewGenerator()

	code, img, err := g.Issue()
	require.NoError(t, err)

	assert.Len(t, code, DefaultLength)
	for _, ch := range code {
		assert.True(t, strings.ContainsRune(Alphabet, ch), "unexpected character %q", ch)
	}

	assert.Equal(t, "image/png", img.ContentType)
	decoded, err := png.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, decoded.Bounds().Dx())
	assert.Equal(t, DefaultHeight, decoded.Bounds().Dy())
}

func TestVerify(t *testing.T) {
	g := NewGenerator()

	assert.True(t, g.Verify("Xk3F9p", "Xk3F9p"))
	assert.False(t, g.Verify("Xk3F9p", "xk3f9p"))
	assert.False(t, g.Verify("Xk3F9p", "Xk3F9p "))
	assert.False(t, g.Verify("Xk3F9p", ""))
	assert.False(t, g.Verify("", ""))
}

func TestRandomCodeVaries(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := RandomCode(DefaultLength)
		require.NoError(t, err)
		seen[code] = struct{}{}
	}
	// 62^6 codes; 50 draws colliding down to a handful means the source is broken
	assert.Greater(t, len(seen), 45)
}

func TestRenderDrawsOnCanvas(t *testing.T) {
	g := NewGenerator().(*Generator)

	data, err := g.Render("Q7mZa1")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	dark := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r < 0x8000 {
				dark++
			}
		}
	}
	assert.Greater(t, dark, 100)
}
