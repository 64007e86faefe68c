// Package document reads PDF page geometry, places and renders the visible
// signature block, and applies and verifies PDF signatures. It works on byte
// buffers only; the caller keeps the original document.
package document

import (
	"bytes"
	"fmt"

	"github.com/digitorus/pdf"
	"github.com/robcowart/docsign/internal/apperr"
)

// A4 is used for pages that carry no usable MediaBox.
var A4 = Rect{LLX: 0, LLY: 0, URX: 595.28, URY: 841.89}

// Rect is a rectangle in PDF user space, origin bottom-left.
type Rect struct {
	LLX float64 `json:"llx"`
	LLY float64 `json:"lly"`
	URX float64 `json:"urx"`
	URY float64 `json:"ury"`
}

// Width of r.
func (r Rect) Width() float64 { return r.URX - r.LLX }

// Height of r.
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Document is a parsed PDF held in memory.
type Document struct {
	data   []byte
	reader *pdf.Reader
}

// Open parses data as a PDF. Input the parser rejects is a
// MalformedDocument error.
func Open(data []byte) (doc *Document, err error) {
	const op = "document.Open"

	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, apperr.New(apperr.KindMalformedDocument, op, "input is not a PDF document")
	}

	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, apperr.Wrap(apperr.KindMalformedDocument, op, "failed to parse PDF", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedDocument, op, "failed to parse PDF", err)
	}
	if reader.Trailer().Key("Root").IsNull() {
		return nil, apperr.New(apperr.KindMalformedDocument, op, "PDF has no document catalog")
	}

	return &Document{data: data, reader: reader}, nil
}

// Bytes returns the document as it was opened.
func (d *Document) Bytes() []byte {
	return d.data
}

// Size of the document in bytes.
func (d *Document) Size() int64 {
	return int64(len(d.data))
}

// PageCount returns the number of pages.
func (d *Document) PageCount() (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, apperr.Wrap(apperr.KindMalformedDocument, "document.PageCount", "failed to read page tree", fmt.Errorf("%v", r))
		}
	}()
	return d.reader.NumPage(), nil
}

// PageBox returns the visible area of page n (1-based): its CropBox, else
// its MediaBox, following inheritance from the page tree. Pages without
// either are treated as A4.
func (d *Document) PageBox(n int) (box Rect, err error) {
	const op = "document.PageBox"

	count, err := d.PageCount()
	if err != nil {
		return Rect{}, err
	}
	if n < 1 || n > count {
		return Rect{}, apperr.New(apperr.KindPageOutOfRange, op, fmt.Sprintf("page %d does not exist, document has %d pages", n, count))
	}

	defer func() {
		if r := recover(); r != nil {
			box, err = Rect{}, apperr.Wrap(apperr.KindMalformedDocument, op, "failed to read page", fmt.Errorf("%v", r))
		}
	}()

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return Rect{}, apperr.New(apperr.KindPageOutOfRange, op, fmt.Sprintf("page %d does not exist", n))
	}

	for _, key := range []string{"CropBox", "MediaBox"} {
		if r, ok := rectFromValue(inherited(page.V, key)); ok {
			return r, nil
		}
	}
	return A4, nil
}

// inherited looks key up on the page and then on its ancestors.
func inherited(v pdf.Value, key string) pdf.Value {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if val := v.Key(key); !val.IsNull() {
			return val
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func rectFromValue(v pdf.Value) (Rect, bool) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return Rect{}, false
	}

	var n [4]float64
	for i := range n {
		item := v.Index(i)
		if item.Kind() != pdf.Integer && item.Kind() != pdf.Real {
			return Rect{}, false
		}
		n[i] = item.Float64()
	}

	r := Rect{
		LLX: min(n[0], n[2]),
		LLY: min(n[1], n[3]),
		URX: max(n[0], n[2]),
		URY: max(n[1], n[3]),
	}
	if r.Width() <= 0 || r.Height() <= 0 {
		return Rect{}, false
	}
	return r, true
}
