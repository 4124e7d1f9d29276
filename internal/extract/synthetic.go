package extract

import (
	"math"

	"github.com/iconidentify/clipgif/internal/domain"
)

// Synthesize generates count deterministic placeholder frames: a diagonal
// gradient whose hue drifts over time, crossed by a vertical bar that sweeps
// left to right and a horizontal bar that sweeps top to bottom.
func Synthesize(count, width, height int, start, fps float64) []domain.Frame {
	if count < 1 || width < 1 || height < 1 {
		return nil
	}
	if fps <= 0 {
		fps = 10
	}

	barW := max(width/16, 2)
	barH := max(height/16, 2)

	frames := make([]domain.Frame, count)
	for i := range frames {
		pix := make([]byte, width*height*4)
		phase := float64(i) / float64(count)
		barX := int(phase * float64(width-barW))
		barY := int(phase * float64(height-barH))
		hue := phase * 2 * math.Pi

		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				off := (y*width + x) * 4
				if (x >= barX && x < barX+barW) || (y >= barY && y < barY+barH) {
					pix[off], pix[off+1], pix[off+2], pix[off+3] = 0xff, 0xff, 0xff, 0xff
					continue
				}
				t := float64(x+y) / float64(width+height)
				pix[off] = uint8(127 + 127*math.Sin(hue+t*math.Pi))
				pix[off+1] = uint8(127 + 127*math.Sin(hue+t*math.Pi+2*math.Pi/3))
				pix[off+2] = uint8(127 + 127*math.Sin(hue+t*math.Pi+4*math.Pi/3))
				pix[off+3] = 0xff
			}
		}

		frames[i] = domain.Frame{
			Width:     width,
			Height:    height,
			Pixels:    pix,
			Timestamp: start + float64(i)/fps,
			Index:     i,
		}
	}
	return frames
}
