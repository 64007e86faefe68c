// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// Box is a MediaBox as [llx lly urx ury].
type Box [4]float64

// Letter is US Letter in points.
var Letter = Box{0, 0, 612, 792}

// Options controls the generated document.
type Options struct {
	// Pages is the number of pages; zero means one.
	Pages int
	// InheritedBox is set on the page tree root when non-nil.
	InheritedBox *Box
	// PageBoxes gives per-page MediaBoxes by 0-based index.
	PageBoxes map[int]Box
}

// New returns a PDF 1.7 document with the requested pages. Each page has a
// short text content stream so the file resembles a real document.
func New(opts Options) []byte {
	pages := opts.Pages
	if pages < 1 {
		pages = 1
	}

	// Object layout: 1 catalog, 2 page tree, 3 font, then a page object
	// and a content stream per page.
	var objects [][]byte

	objects = append(objects, []byte("<< /Type /Catalog /Pages 2 0 R >>"))

	var kids bytes.Buffer
	for i := 0; i < pages; i++ {
		fmt.Fprintf(&kids, "%d 0 R ", 4+2*i)
	}
	tree := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", bytes.TrimSpace(kids.Bytes()), pages)
	if opts.InheritedBox != nil {
		tree += " /MediaBox " + boxString(*opts.InheritedBox)
	}
	tree += " >>"
	objects = append(objects, []byte(tree))

	objects = append(objects, []byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"))

	for i := 0; i < pages; i++ {
		pageObj := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R", 5+2*i)
		if box, ok := opts.PageBoxes[i]; ok {
			pageObj += " /MediaBox " + boxString(box)
		}
		pageObj += " >>"
		objects = append(objects, []byte(pageObj))

		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (Page %d) Tj ET", i+1)
		objects = append(objects, []byte(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

// Simple returns a one page US Letter document.
func Simple() []byte {
	return New(Options{Pages: 1, PageBoxes: map[int]Box{0: Letter}})
}

func boxString(b Box) string {
	return fmt.Sprintf("[%g %g %g %g]", b[0], b[1], b[2], b[3])
}
