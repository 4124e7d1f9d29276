package canvas

import (
	"fmt"
	"image"
	"sort"

	"golang.org/x/image/draw"

	"github.com/iconidentify/clipgif/internal/domain"
)

// Preset is a named output resolution keyed by height.
type Preset struct {
	Name   string `json:"name"`
	Height int    `json:"height"`
	Label  string `json:"label"`
}

var presets = map[string]Preset{
	"240p": {Name: "240p", Height: 240, Label: "Small"},
	"360p": {Name: "360p", Height: 360, Label: "Medium"},
	"480p": {Name: "480p", Height: 480, Label: "Standard"},
	"720p": {Name: "720p", Height: 720, Label: "HD"},
}

// Presets returns every preset ordered by height.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// PresetSize returns the even output size of a srcW x srcH frame at preset height.
func (p Preset) PresetSize(srcW, srcH int) domain.Dimensions {
	return TargetSize(srcW, srcH, 0, p.Height, ModeFit)
}

// Scaler returns the interpolator used for a quality tier.
func Scaler(q domain.Quality) draw.Scaler {
	switch q.Tier() {
	case domain.QualityLow:
		return draw.ApproxBiLinear
	case domain.QualityMedium:
		return draw.BiLinear
	default:
		return draw.CatmullRom
	}
}

// Resample scales src to w x h. When the scale factor on either axis is
// below 0.5 the source is first halved repeatedly, then drawn once at the
// final size.
func Resample(src *image.RGBA, w, h int, scaler draw.Scaler) *image.RGBA {
	cur := src
	for {
		b := cur.Bounds()
		nw, nh := b.Dx()/2, b.Dy()/2
		if nw < w || nh < h || nw < 1 || nh < 1 {
			break
		}
		half := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.BiLinear.Scale(half, half.Bounds(), cur, b, draw.Src, nil)
		cur = half
	}

	b := cur.Bounds()
	if b.Dx() == w && b.Dy() == h {
		if cur != src {
			return cur
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), cur, b, draw.Src, nil)
	return dst
}

// ScaleToPreset resizes a frame to a named preset, optionally sharpening the
// result.
func ScaleToPreset(f domain.Frame, name string, q domain.Quality, sharpen *Unsharp) (domain.Frame, error) {
	p, ok := LookupPreset(name)
	if !ok {
		return domain.Frame{}, fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidInput, name)
	}
	if !f.Valid() {
		return domain.Frame{}, fmt.Errorf("%w: frame %d", domain.ErrInvalidDimensions, f.Index)
	}

	size := p.PresetSize(f.Width, f.Height)
	out := Resample(f.RGBA(), size.Width, size.Height, Scaler(q))
	if sharpen != nil {
		sharpen.Apply(out)
	}
	return frameFrom(out, f.Timestamp, f.Index), nil
}

// Unsharp configures the unsharp mask.
type Unsharp struct {
	Amount    float64 `json:"amount"`    // strength, typically 0.3..1.5
	Radius    int     `json:"radius"`    // box blur radius in pixels
	Threshold int     `json:"threshold"` // minimum difference to sharpen, 0..255
}

// DefaultUnsharp is applied when sharpening is requested without parameters.
var DefaultUnsharp = Unsharp{Amount: 0.6, Radius: 1, Threshold: 2}

// Apply sharpens img in place: orig + amount*(orig - blur) wherever the
// difference exceeds the threshold.
func (u Unsharp) Apply(img *image.RGBA) {
	if u.Amount <= 0 {
		return
	}
	r := u.Radius
	if r < 1 {
		r = 1
	}

	blurred := boxBlur(img, r)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		brow := blurred.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx()*4; x += 4 {
			for c := 0; c < 3; c++ {
				o := float64(img.Pix[row+x+c])
				diff := o - float64(blurred.Pix[brow+x+c])
				if abs(diff) <= float64(u.Threshold) {
					continue
				}
				img.Pix[row+x+c] = clamp8(o + u.Amount*diff)
			}
		}
	}
}

// boxBlur returns a separable box blur of img with the given radius.
func boxBlur(img *image.RGBA, r int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := image.NewRGBA(image.Rect(0, 0, w, h))
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	// Horizontal pass
	for y := 0; y < h; y++ {
		src := img.PixOffset(b.Min.X, b.Min.Y+y)
		dst := tmp.PixOffset(0, y)
		for x := 0; x < w; x++ {
			var sum [4]int
			n := 0
			for k := x - r; k <= x+r; k++ {
				if k < 0 || k >= w {
					continue
				}
				for c := 0; c < 4; c++ {
					sum[c] += int(img.Pix[src+k*4+c])
				}
				n++
			}
			for c := 0; c < 4; c++ {
				tmp.Pix[dst+x*4+c] = byte(sum[c] / n)
			}
		}
	}

	// Vertical pass
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			var sum [4]int
			n := 0
			for k := y - r; k <= y+r; k++ {
				if k < 0 || k >= h {
					continue
				}
				off := tmp.PixOffset(x, k)
				for c := 0; c < 4; c++ {
					sum[c] += int(tmp.Pix[off+c])
				}
				n++
			}
			off := out.PixOffset(x, y)
			for c := 0; c < 4; c++ {
				out.Pix[off+c] = byte(sum[c] / n)
			}
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
