package document

import (
	"testing"

	"github.com/robcowart/docsign/internal/apperr"
	"github.com/robcowart/docsign/internal/document/pdftest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		doc, err := Open(pdftest.New(pdftest.Options{Pages: 3}))
		require.NoError(t, err)

		count, err := doc.PageCount()
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("keeps the input bytes", func(t *testing.T) {
		data := pdftest.Simple()
		doc, err := Open(data)
		require.NoError(t, err)
		assert.Equal(t, data, doc.Bytes())
		assert.Equal(t, int64(len(data)), doc.Size())
	})

	malformed := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("hello world")},
		{"truncated", pdftest.Simple()[:40]},
		{"header only", []byte("%PDF-1.7\n%%EOF\n")},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.data)
			require.Error(t, err)
			assert.Equal(t, apperr.KindMalformedDocument, apperr.KindOf(err))
		})
	}
}

func TestPageBox(t *testing.T) {
	t.Run("page MediaBox", func(t *testing.T) {
		doc, err := Open(pdftest.Simple())
		require.NoError(t, err)

		box, err := doc.PageBox(1)
		require.NoError(t, err)
		assert.Equal(t, Rect{LLX: 0, LLY: 0, URX: 612, URY: 792}, box)
	})

	t.Run("inherited from page tree", func(t *testing.T) {
		inherited := pdftest.Box{0, 0, 420, 595}
		doc, err := Open(pdftest.New(pdftest.Options{
			Pages:        2,
			InheritedBox: &inherited,
			PageBoxes:    map[int]pdftest.Box{1: pdftest.Letter},
		}))
		require.NoError(t, err)

		first, err := doc.PageBox(1)
		require.NoError(t, err)
		assert.Equal(t, Rect{URX: 420, URY: 595}, first)

		second, err := doc.PageBox(2)
		require.NoError(t, err)
		assert.Equal(t, Rect{URX: 612, URY: 792}, second)
	})

	t.Run("defaults to A4", func(t *testing.T) {
		doc, err := Open(pdftest.New(pdftest.Options{Pages: 1}))
		require.NoError(t, err)

		box, err := doc.PageBox(1)
		require.NoError(t, err)
		assert.Equal(t, A4, box)
	})

	t.Run("normalizes reversed corners", func(t *testing.T) {
		doc, err := Open(pdftest.New(pdftest.Options{PageBoxes: map[int]pdftest.Box{0: {612, 792, 0, 0}}}))
		require.NoError(t, err)

		box, err := doc.PageBox(1)
		require.NoError(t, err)
		assert.Equal(t, Rect{URX: 612, URY: 792}, box)
	})

	t.Run("page out of range", func(t *testing.T) {
		doc, err := Open(pdftest.New(pdftest.Options{Pages: 2}))
		require.NoError(t, err)

		for _, n := range []int{0, -1, 3} {
			_, err := doc.PageBox(n)
			require.Error(t, err)
			assert.Equal(t, apperr.KindPageOutOfRange, apperr.KindOf(err), "page %d", n)
		}
	})
}
