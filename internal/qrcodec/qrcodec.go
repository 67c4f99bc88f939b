// Package qrcodec turns product identifiers into QR code images and back.
package qrcodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrTooLarge      = errors.New("payload exceeds qr code capacity")
	ErrNotRecognized = errors.New("qr code not recognized")
)

// Level is the error correction level of an encoded symbol.
type Level string

const (
	LevelLow      Level = "low"      // ~7%
	LevelMedium   Level = "medium"   // ~15%
	LevelQuartile Level = "quartile" // ~25%
	LevelHigh     Level = "high"     // ~30%
)

const (
	DefaultBoxSize = 10
	DefaultBorder  = 4
	maxBoxSize     = 64
	maxBorder      = 32
)

// ParseLevel accepts the level names plus the single letters L, M, Q and H.
// An empty string yields LevelLow.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low", "l":
		return LevelLow, nil
	case "medium", "m":
		return LevelMedium, nil
	case "quartile", "q":
		return LevelQuartile, nil
	case "high", "h":
		return LevelHigh, nil
	}
	return "", fmt.Errorf("%w: unknown error correction level %q", ErrInvalidInput, s)
}

func (l Level) recovery() qrcode.RecoveryLevel {
	switch l {
	case LevelMedium:
		return qrcode.Medium
	case LevelQuartile:
		return qrcode.High
	case LevelHigh:
		return qrcode.Highest
	default:
		return qrcode.Low
	}
}

// Options controls the rendered image. Zero values take the defaults:
// low correction, 10 pixel modules and a 4 module quiet zone.
type Options struct {
	Level   Level
	BoxSize int
	Border  int
	// NoBorder renders without a quiet zone; Border is ignored.
	NoBorder bool
}

// DefaultOptions matches the settings the printed labels use.
func DefaultOptions() Options {
	return Options{Level: LevelLow, BoxSize: DefaultBoxSize, Border: DefaultBorder}
}

func (o Options) normalize() (Options, error) {
	if o.Level == "" {
		o.Level = LevelLow
	}
	if _, err := ParseLevel(string(o.Level)); err != nil {
		return o, err
	}
	if o.BoxSize == 0 {
		o.BoxSize = DefaultBoxSize
	}
	if o.BoxSize < 1 || o.BoxSize > maxBoxSize {
		return o, fmt.Errorf("%w: box size %d out of range", ErrInvalidInput, o.BoxSize)
	}
	if o.NoBorder {
		o.Border = 0
	} else if o.Border == 0 {
		o.Border = DefaultBorder
	}
	if o.Border < 0 || o.Border > maxBorder {
		return o, fmt.Errorf("%w: border %d out of range", ErrInvalidInput, o.Border)
	}
	return o, nil
}

var palette = color.Palette{color.White, color.Black}

// EncodeImage renders identifier as a QR code image. The smallest symbol
// version that fits the payload is used.
func EncodeImage(identifier string, opts Options) (image.Image, error) {
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier is empty", ErrInvalidInput)
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	q, err := qrcode.New(identifier, opts.Level.recovery())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTooLarge, err)
	}
	q.DisableBorder = true
	bitmap := q.Bitmap()

	modules := len(bitmap) + 2*opts.Border
	side := modules * opts.BoxSize
	img := image.NewPaletted(image.Rect(0, 0, side, side), palette)
	for y, row := range bitmap {
		for x, dark := range row {
			if !dark {
				continue
			}
			x0 := (x + opts.Border) * opts.BoxSize
			y0 := (y + opts.Border) * opts.BoxSize
			for dy := 0; dy < opts.BoxSize; dy++ {
				off := img.PixOffset(x0, y0+dy)
				for dx := 0; dx < opts.BoxSize; dx++ {
					img.Pix[off+dx] = 1
				}
			}
		}
	}
	return img, nil
}

// Encode renders identifier as a PNG.
func Encode(identifier string, opts Options) ([]byte, error) {
	img, err := EncodeImage(identifier, opts)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

var decodeHints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER:    true,
	gozxing.DecodeHintType_CHARACTER_SET: "UTF-8",
}

// Decode locates a QR code in img and returns its text payload.
//
// Only one symbol is read. When an image holds several, the detector takes
// the first finder pattern triple met by its top-to-bottom, left-to-right
// row scan, so the choice is stable for a given image.
func Decode(img image.Image) (text string, err error) {
	if img == nil || img.Bounds().Empty() {
		return "", ErrNotRecognized
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrNotRecognized, r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRecognized, err)
	}
	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, decodeHints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRecognized, err)
	}
	return result.GetText(), nil
}

// DecodeBytes decodes a PNG, JPEG or GIF image and reads the QR code in it.
func DecodeBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrNotRecognized
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotRecognized, err)
	}
	return Decode(img)
}
