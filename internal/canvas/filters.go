package canvas

// Filters holds brightness, contrast and saturation adjustments in
// -100..100. Zero leaves the channel untouched.
type Filters struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Saturation int `json:"saturation"`
}

// IsZero reports whether every adjustment is zero.
func (f Filters) IsZero() bool {
	return f.Brightness == 0 && f.Contrast == 0 && f.Saturation == 0
}

// Apply runs brightness, contrast and saturation over RGBA pixels in place,
// in that order. Alpha is never touched.
func (f Filters) Apply(pix []byte) {
	if b := clampAdjust(f.Brightness); b != 0 {
		brightness(pix, b)
	}
	if c := clampAdjust(f.Contrast); c != 0 {
		contrast(pix, c)
	}
	if s := clampAdjust(f.Saturation); s != 0 {
		saturation(pix, s)
	}
}

func clampAdjust(v int) int {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}

func clamp8(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v + 0.5)
}

// brightness shifts every channel by v percent of full scale.
func brightness(pix []byte, v int) {
	delta := float64(v) * 2.55
	var lut [256]byte
	for i := range lut {
		lut[i] = clamp8(float64(i) + delta)
	}
	applyLUT(pix, &lut)
}

// contrast uses the standard 259-based contrast correction factor.
func contrast(pix []byte, v int) {
	c := float64(v) * 2.55
	factor := (259 * (c + 255)) / (255 * (259 - c))
	var lut [256]byte
	for i := range lut {
		lut[i] = clamp8(factor*(float64(i)-128) + 128)
	}
	applyLUT(pix, &lut)
}

// saturation mixes each pixel with its luma. -100 is grayscale.
func saturation(pix []byte, v int) {
	s := 1 + float64(v)/100
	for i := 0; i+3 < len(pix); i += 4 {
		r, g, b := float64(pix[i]), float64(pix[i+1]), float64(pix[i+2])
		gray := 0.299*r + 0.587*g + 0.114*b
		pix[i] = clamp8(gray + (r-gray)*s)
		pix[i+1] = clamp8(gray + (g-gray)*s)
		pix[i+2] = clamp8(gray + (b-gray)*s)
	}
}

func applyLUT(pix []byte, lut *[256]byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = lut[pix[i]]
		pix[i+1] = lut[pix[i+1]]
		pix[i+2] = lut[pix[i+2]]
	}
}
