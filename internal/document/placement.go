package document

import (
	"fmt"
	"math"

	"github.com/robcowart/docsign/internal/apperr"
)

// Position is where the caller wants the signature: a 1-based page and the
// centre of the box as percentages of the page width and height, with y
// measured from the top edge.
type Position struct {
	Page     int     `json:"page"`
	XPercent float64 `json:"x"`
	YPercent float64 `json:"y"`
}

// Validate checks the page number and that both percentages lie in
// [0, 100]. Whether the page exists is only known once a document is open.
func (p Position) Validate() error {
	const op = "document.Position"
	if p.Page < 1 {
		return apperr.New(apperr.KindValidation, op, "page must be 1 or greater")
	}
	if !inPercentRange(p.XPercent) || !inPercentRange(p.YPercent) {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf("position (%g, %g) must be within 0-100", p.XPercent, p.YPercent))
	}
	return nil
}

func inPercentRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// Size is the width and height of the signature box in points.
type Size struct {
	W float64
	H float64
}

// Place converts pos into a signature rectangle on a page with the given
// box. The box is centred on the requested point and then moved as little
// as needed to lie fully inside the page; a box larger than the page is
// shrunk to it. The result is rounded to hundredths of a point.
func Place(page Rect, pos Position, size Size) Rect {
	w := math.Min(size.W, page.Width())
	h := math.Min(size.H, page.Height())

	cx := page.LLX + page.Width()*pos.XPercent/100
	cy := page.URY - page.Height()*pos.YPercent/100

	llx := clamp(cx-w/2, page.LLX, page.URX-w)
	lly := clamp(cy-h/2, page.LLY, page.URY-h)

	return Rect{
		LLX: round2(llx),
		LLY: round2(lly),
		URX: round2(llx + w),
		URY: round2(lly + h),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
