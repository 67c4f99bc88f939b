package qrcodec

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodauth/prodauth/internal/productid"
)

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"1",
		"423031323334353637383a",
		"b7e2d9f04c1a4e8f9d3a0c6b5e7f8a9d4230313233",
		"Hello, World! ~`@#$%^&*()_+-={}[]|\\:;\"'<>,.?/",
		strings.Repeat("0123456789abcdef", 12),
		printableASCII(1000),
		printableASCII(2000),
	}
	for _, s := range cases {
		png, err := Encode(s, DefaultOptions())
		require.NoError(t, err)
		got, err := DecodeBytes(png)
		require.NoError(t, err, "payload of %d bytes", len(s))
		assert.Equal(t, s, got)
	}
}

// printableASCII cycles through ' '..'~' for n bytes.
func printableASCII(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(' ' + i%95)
	}
	return string(b)
}

func TestRoundTripLevels(t *testing.T) {
	id := "423031323334353637383a"
	for _, lvl := range []Level{LevelLow, LevelMedium, LevelQuartile, LevelHigh} {
		img, err := EncodeImage(id, Options{Level: lvl, BoxSize: 6, Border: 2})
		require.NoError(t, err)
		got, err := Decode(img)
		require.NoError(t, err, "level %s", lvl)
		assert.Equal(t, id, got)
	}
}

func TestGeneratedIdentifierRoundTrip(t *testing.T) {
	id, err := productid.GenerateWithToken("00000000000000000000000000000001", "B0123456789")
	require.NoError(t, err)

	png, err := Encode(id, DefaultOptions())
	require.NoError(t, err)
	got, err := DecodeBytes(png)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestEncodeGeometry(t *testing.T) {
	img, err := EncodeImage("abc", Options{BoxSize: 10, Border: 4})
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, b.Dx(), b.Dy())
	require.Zero(t, b.Dx()%10)
	// version 1 is 21 modules, each version adds 4
	modules := b.Dx()/10 - 2*4
	assert.GreaterOrEqual(t, modules, 21)
	assert.Zero(t, (modules-21)%4)

	// quiet zone is white, top-left finder pattern starts right after it
	assert.Equal(t, color.Gray{Y: 255}, color.GrayModel.Convert(img.At(0, 0)), "corner should be white")
	r, g, bl, _ := img.At(4*10, 4*10).RGBA()
	assert.Zero(t, r+g+bl, "first module should be dark")
}

func TestEncodeNoBorder(t *testing.T) {
	img, err := EncodeImage("abc", Options{BoxSize: 1, NoBorder: true})
	require.NoError(t, err)
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Zero(t, r+g+b)
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode("", DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Encode("abc", Options{Level: "extreme"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Encode("abc", Options{BoxSize: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Encode("abc", Options{Border: maxBorder + 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Encode(strings.Repeat("x", 3000), Options{Level: LevelHigh})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeBlankImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 300, 300))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	_, err := Decode(img)
	assert.ErrorIs(t, err, ErrNotRecognized)
}

func TestDecodeNoiseImage(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	img := image.NewGray(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = uint8(rnd.Intn(256))
	}
	_, err := Decode(img)
	assert.ErrorIs(t, err, ErrNotRecognized)
}

func TestDecodeInvalidInput(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrNotRecognized)

	_, err = DecodeBytes(nil)
	assert.ErrorIs(t, err, ErrNotRecognized)

	_, err = DecodeBytes([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrNotRecognized)
}

func TestDecodeJPEG(t *testing.T) {
	id := "423031323334353637383a"
	img, err := EncodeImage(id, DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	got, err := DecodeBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

// twoCodes places a and b side by side, or a above b when stacked.
func twoCodes(t *testing.T, a, b string, stacked bool) image.Image {
	t.Helper()
	first, err := EncodeImage(a, Options{BoxSize: 6})
	require.NoError(t, err)
	second, err := EncodeImage(b, Options{BoxSize: 6})
	require.NoError(t, err)

	fb, sb := first.Bounds(), second.Bounds()
	offset := image.Pt(fb.Dx(), 0)
	w, h := fb.Dx()+sb.Dx(), max(fb.Dy(), sb.Dy())
	if stacked {
		offset = image.Pt(0, fb.Dy())
		w, h = max(fb.Dx(), sb.Dx()), fb.Dy()+sb.Dy()
	}
	canvas := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, fb, first, image.Point{}, draw.Src)
	draw.Draw(canvas, sb.Add(offset), second, image.Point{}, draw.Src)
	return canvas
}

func TestDecodeMultiplePicksFirstInScanOrder(t *testing.T) {
	for _, stacked := range []bool{false, true} {
		img := twoCodes(t, "aaaa1111", "bbbb2222", stacked)
		for i := 0; i < 3; i++ {
			got, err := Decode(img)
			require.NoError(t, err, "stacked=%v", stacked)
			assert.Equal(t, "aaaa1111", got, "stacked=%v", stacked)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"":         LevelLow,
		"L":        LevelLow,
		"medium":   LevelMedium,
		"Q":        LevelQuartile,
		"quartile": LevelQuartile,
		"HIGH":     LevelHigh,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("x")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
