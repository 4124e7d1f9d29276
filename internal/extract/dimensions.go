package extract

import (
	"math"

	"github.com/iconidentify/clipgif/internal/domain"
)

// qualityScale is the fraction of source resolution kept per quality tier.
func qualityScale(q domain.Quality) float64 {
	switch q.Tier() {
	case domain.QualityLow:
		return 0.5
	case domain.QualityMedium:
		return 0.75
	default:
		return 1.0
	}
}

// Dimensions computes the extraction size for a srcW x srcH source: the
// quality scale is applied, the result is clamped to maxW x maxH (0 means
// unbounded) keeping the aspect ratio, and both sides are floored to even
// values no smaller than 2.
func Dimensions(srcW, srcH int, q domain.Quality, maxW, maxH int) domain.Dimensions {
	s := qualityScale(q)
	w := float64(srcW) * s
	h := float64(srcH) * s

	if maxW > 0 && w > float64(maxW) {
		h = h * float64(maxW) / w
		w = float64(maxW)
	}
	if maxH > 0 && h > float64(maxH) {
		w = w * float64(maxH) / h
		h = float64(maxH)
	}

	return domain.Dimensions{Width: floorEven(w), Height: floorEven(h)}
}

func floorEven(v float64) int {
	n := int(math.Floor(v)) &^ 1
	if n < 2 {
		return 2
	}
	return n
}

// FrameCount is ceil(duration * fps), tolerant of float noise such as
// 0.3 * 10 = 3.0000000000000004.
func FrameCount(duration, fps float64) int {
	n := int(math.Ceil(duration*fps - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}
