package overlay

import (
	"image"
	"testing"

	"catwatch/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCaption(t *testing.T) {
	track := models.Track{ID: 3, Label: "cat", Confidence: 0.934}
	assert.Equal(t, "CAT 0.93", Caption(track))
}

func TestCaptionOrigin(t *testing.T) {
	tests := []struct {
		name string
		box  models.Box
		want image.Point
	}{
		{"above box", models.NewBox(10, 40, 50, 80), image.Pt(10, 30)},
		{"kept inside frame", models.NewBox(5, 2, 50, 80), image.Pt(5, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CaptionOrigin(tt.box))
		})
	}
}

func TestRendererColor(t *testing.T) {
	r := NewRenderer(nil)
	assert.Equal(t, green, r.Color("cat"))
	assert.Equal(t, red, r.Color("person"))
	assert.Equal(t, blue, r.Color("dog"))
}
