package mask

import (
	"image"
	"image/draw"
)

// ToGray copies any image into a single-channel mask anchored at the origin
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return out
	}
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// fromNRGBA takes the red channel of an imaging result, which is gray for gray input
func fromNRGBA(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = src[x*4]
		}
	}
	return out
}

// Erode shrinks bright regions with a square structuring element of the given radius
func Erode(m *image.Gray, radius int) *image.Gray {
	return morph(m, radius, func(a, b uint8) bool { return a < b })
}

// Dilate grows bright regions with a square structuring element of the given radius
func Dilate(m *image.Gray, radius int) *image.Gray {
	return morph(m, radius, func(a, b uint8) bool { return a > b })
}

// Open removes bright specks smaller than the radius
func Open(m *image.Gray, radius int) *image.Gray {
	return Dilate(Erode(m, radius), radius)
}

// morph runs a separable min or max filter; better(a, b) reports whether a wins over b
func morph(m *image.Gray, radius int, better func(a, b uint8) bool) *image.Gray {
	src := ToGray(m)
	if radius <= 0 {
		return src
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()

	tmp := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		out := tmp.Pix[y*tmp.Stride:]
		for x := 0; x < w; x++ {
			best := row[x]
			for k := max(0, x-radius); k <= min(w-1, x+radius); k++ {
				if better(row[k], best) {
					best = row[k]
				}
			}
			out[x] = best
		}
	}

	dst := image.NewGray(src.Rect)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			best := tmp.Pix[y*tmp.Stride+x]
			for k := max(0, y-radius); k <= min(h-1, y+radius); k++ {
				if v := tmp.Pix[k*tmp.Stride+x]; better(v, best) {
					best = v
				}
			}
			dst.Pix[y*dst.Stride+x] = best
		}
	}
	return dst
}
