package canvas

import (
	"fmt"
	"math"

	"github.com/iconidentify/clipgif/internal/domain"
)

// Mode controls how a frame is mapped onto the target box.
type Mode string

const (
	// ModeFit scales the whole frame inside the box. The output takes the
	// fitted size; no bars are added.
	ModeFit Mode = "fit"
	// ModeFill scales to cover the box and crops the centered excess.
	ModeFill Mode = "fill"
	// ModeCrop is an alias of ModeFill.
	ModeCrop Mode = "crop"
	// ModeStretch ignores the source aspect ratio.
	ModeStretch Mode = "stretch"
)

// ParseMode maps a request value to a Mode. Empty means fit.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFit:
		return ModeFit, nil
	case ModeFill, ModeCrop, ModeStretch:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: unknown resize mode %q", domain.ErrInvalidInput, s)
}

// Even rounds v to the nearest even integer, never below 2.
func Even(v float64) int {
	n := int(math.Round(v/2)) * 2
	if n < 2 {
		return 2
	}
	return n
}

// TargetSize computes the output size for a srcW x srcH frame.
//
// With neither dimension given the source size is kept. With one dimension
// given the other follows the source aspect ratio. With both given, fit
// shrinks the box to the source aspect ratio while fill, crop and stretch
// return the box itself. Results are always even and at least 2x2.
func TargetSize(srcW, srcH, width, height int, mode Mode) domain.Dimensions {
	aspect := float64(srcW) / float64(srcH)

	var w, h float64
	switch {
	case width <= 0 && height <= 0:
		w, h = float64(srcW), float64(srcH)
	case width <= 0:
		h = float64(height)
		w = h * aspect
	case height <= 0:
		w = float64(width)
		h = w / aspect
	case mode == ModeFit:
		scale := math.Min(float64(width)/float64(srcW), float64(height)/float64(srcH))
		w, h = float64(srcW)*scale, float64(srcH)*scale
	default:
		w, h = float64(width), float64(height)
	}

	return domain.Dimensions{Width: Even(w), Height: Even(h)}
}

// coverRect returns the centered region of a srcW x srcH frame that has the
// aspect ratio of dstW x dstH.
func coverRect(srcW, srcH, dstW, dstH int) (x, y, w, h int) {
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)

	if srcAspect > dstAspect {
		h = srcH
		w = int(math.Round(float64(srcH) * dstAspect))
	} else {
		w = srcW
		h = int(math.Round(float64(srcW) / dstAspect))
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return (srcW - w) / 2, (srcH - h) / 2, w, h
}
