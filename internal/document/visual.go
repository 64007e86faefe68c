package document

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // register PNG for QR images
	"math"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/robcowart/docsign/internal/apperr"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Visual is the identity shown in the signature block.
type Visual struct {
	QRImage      []byte
	DisplayName  string
	Email        string
	Organization string
	SignedAt     time.Time
}

// visualWidth is the raster width of the appearance image; the height
// follows the box aspect ratio, bounded by maxVisualHeight. The PDF viewer
// scales the raster into the box either way.
const (
	visualWidth     = 360
	maxVisualHeight = 4 * visualWidth
)

const (
	textMargin  = 6
	lineSpacing = 15
)

// ComposeVisual renders the signature appearance for a box of the given
// size as a JPEG: the QR code on the left and the signer identity on the
// right. Without a QR image one is generated from the identity.
func ComposeVisual(v Visual, size Size) ([]byte, error) {
	const op = "document.ComposeVisual"

	width := visualWidth
	height := visualHeight(size)

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	side := min(height, width/2) - 2*textMargin
	qrImg, err := qrImage(v, side)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, "invalid QR image", err)
	}
	qrRect := image.Rect(textMargin, textMargin, textMargin+side, textMargin+side)
	draw.NearestNeighbor.Scale(img, qrRect, qrImg, qrImg.Bounds(), draw.Over, nil)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	textX := qrRect.Max.X + 2*textMargin
	maxChars := (width - textX - textMargin) / basicfont.Face7x13.Advance
	y := textMargin + basicfont.Face7x13.Ascent

	for _, line := range identityLines(v) {
		if y > height-textMargin {
			break
		}
		d.Dot = fixed.P(textX, y)
		d.DrawString(truncate(line, maxChars))
		y += lineSpacing
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, apperr.Wrap(apperr.KindSigning, op, "failed to encode signature appearance", err)
	}
	return buf.Bytes(), nil
}

// visualHeight is the raster height for a box of the given size. Degenerate
// boxes get the maximum height.
func visualHeight(size Size) int {
	if !(size.W > 0) || math.IsInf(size.H, 0) || math.IsNaN(size.H) {
		return maxVisualHeight
	}
	h := float64(visualWidth) * size.H / size.W
	if math.IsNaN(h) || h > maxVisualHeight {
		return maxVisualHeight
	}
	return max(int(h), 2*lineSpacing)
}

func identityLines(v Visual) []string {
	lines := []string{"Digitally signed by:", v.DisplayName}
	if v.Email != "" {
		lines = append(lines, v.Email)
	}
	if v.Organization != "" {
		lines = append(lines, v.Organization)
	}
	if !v.SignedAt.IsZero() {
		lines = append(lines, "Date: "+v.SignedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	return lines
}

func qrImage(v Visual, side int) (image.Image, error) {
	if len(v.QRImage) > 0 {
		img, _, err := image.Decode(bytes.NewReader(v.QRImage))
		if err != nil {
			return nil, err
		}
		return img, nil
	}

	content := v.DisplayName
	if v.Email != "" {
		content += " <" + v.Email + ">"
	}
	if !v.SignedAt.IsZero() {
		content += " " + v.SignedAt.UTC().Format(time.RFC3339)
	}

	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, err
	}
	side = max(side, code.Bounds().Dx())
	return barcode.Scale(code, side, side)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
