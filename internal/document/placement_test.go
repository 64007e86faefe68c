package document

import (
	"math"
	"testing"

	"github.com/robcowart/docsign/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionValidate(t *testing.T) {
	tests := []struct {
		name    string
		pos     Position
		wantErr bool
	}{
		{"centre", Position{Page: 1, XPercent: 50, YPercent: 50}, false},
		{"corners", Position{Page: 2, XPercent: 0, YPercent: 100}, false},
		{"page zero", Position{Page: 0, XPercent: 50, YPercent: 50}, true},
		{"negative x", Position{Page: 1, XPercent: -1, YPercent: 50}, true},
		{"y above 100", Position{Page: 1, XPercent: 50, YPercent: 100.5}, true},
		{"nan", Position{Page: 1, XPercent: math.NaN(), YPercent: 50}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pos.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPlace(t *testing.T) {
	letter := Rect{URX: 612, URY: 792}
	box := Size{W: 200, H: 70}

	t.Run("centred on the requested point", func(t *testing.T) {
		r := Place(letter, Position{Page: 1, XPercent: 50, YPercent: 50}, box)
		assert.Equal(t, Rect{LLX: 206, LLY: 361, URX: 406, URY: 431}, r)
	})

	t.Run("y is measured from the top", func(t *testing.T) {
		r := Place(letter, Position{Page: 1, XPercent: 50, YPercent: 90}, box)
		assert.InDelta(t, 792-0.9*792, (r.LLY+r.URY)/2, 0.01)
	})

	t.Run("clamped inside the page", func(t *testing.T) {
		corners := []Position{
			{Page: 1, XPercent: 0, YPercent: 0},
			{Page: 1, XPercent: 100, YPercent: 0},
			{Page: 1, XPercent: 0, YPercent: 100},
			{Page: 1, XPercent: 100, YPercent: 100},
		}
		for _, pos := range corners {
			r := Place(letter, pos, box)
			assert.GreaterOrEqual(t, r.LLX, letter.LLX)
			assert.GreaterOrEqual(t, r.LLY, letter.LLY)
			assert.LessOrEqual(t, r.URX, letter.URX)
			assert.LessOrEqual(t, r.URY, letter.URY)
			assert.InDelta(t, box.W, r.Width(), 0.01)
			assert.InDelta(t, box.H, r.Height(), 0.01)
		}
	})

	t.Run("offset page origin", func(t *testing.T) {
		page := Rect{LLX: 100, LLY: 100, URX: 400, URY: 500}
		r := Place(page, Position{Page: 1, XPercent: 0, YPercent: 100}, box)
		assert.Equal(t, Rect{LLX: 100, LLY: 100, URX: 300, URY: 170}, r)
	})

	t.Run("box larger than the page is shrunk", func(t *testing.T) {
		small := Rect{URX: 150, URY: 50}
		r := Place(small, Position{Page: 1, XPercent: 50, YPercent: 50}, box)
		assert.Equal(t, small, r)
	})

	t.Run("deterministic", func(t *testing.T) {
		pos := Position{Page: 1, XPercent: 33.3, YPercent: 66.6}
		assert.Equal(t, Place(A4, pos, box), Place(A4, pos, box))
	})
}
