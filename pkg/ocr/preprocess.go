package ocr

import (
	"image"
	"image/color"
	"io"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// ThresholdMethod selects how the local neighbourhood mean is computed
// during adaptive binarization.
type ThresholdMethod int

const (
	// ThresholdGaussian weighs the neighbourhood with a Gaussian kernel.
	ThresholdGaussian ThresholdMethod = iota
	// ThresholdMean uses a plain box mean over the block (integral image).
	ThresholdMean
)

// PreprocessOptions tunes the preprocessing pipeline. The zero value is not
// useful; start from DefaultPreprocessOptions.
type PreprocessOptions struct {
	// DenoiseStrength is the non-local-means filter strength h. Zero disables denoising.
	DenoiseStrength float64
	PatchRadius     int
	SearchRadius    int
	// BlockSize is the side of the thresholding neighbourhood, odd, >= 3.
	BlockSize int
	// Offset is subtracted from the local mean before comparison.
	Offset int
	Method ThresholdMethod
	// OpenSize is the side of the square structuring element used for the
	// final opening. 1 is the minimal element.
	OpenSize int
}

// DefaultPreprocessOptions returns the settings used for certificate photos.
func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		DenoiseStrength: 30,
		PatchRadius:     1,
		SearchRadius:    3,
		BlockSize:       31,
		Offset:          10,
		Method:          ThresholdGaussian,
		OpenSize:        1,
	}
}

// Decode reads a raw image. Any decoding failure is an *ImageLoadError.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ImageLoadError{Err: err}
	}
	return img, nil
}

// Open decodes the image stored at path.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &ImageLoadError{Source: path, Err: err}
	}
	return img, nil
}

// Preprocess converts img into a binarized, noise-reduced single channel
// image: grayscale, non-local-means denoise, histogram equalization,
// adaptive threshold, morphological opening. The result only depends on img
// and opts.
func Preprocess(img image.Image, opts PreprocessOptions) *image.Gray {
	g := toGray(img)
	g = denoise(g, opts.DenoiseStrength, opts.PatchRadius, opts.SearchRadius)
	g = equalize(g)
	var bin *image.Gray
	switch opts.Method {
	case ThresholdMean:
		bin = adaptiveMeanThreshold(g, opts.BlockSize, opts.Offset)
	default:
		bin = adaptiveGaussianThreshold(g, opts.BlockSize, opts.Offset)
	}
	return open(bin, opts.OpenSize)
}

// toGray flattens img onto white (so transparent areas read as paper) and
// collapses it to one luminance channel.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	bg := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
	flat := imaging.Grayscale(imaging.Overlay(bg, img, image.Pt(0, 0), 1.0))
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := flat.Pix[y*flat.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			dst[x] = src[x*4]
		}
	}
	return out
}

func cloneGray(src *image.Gray) *image.Gray {
	out := image.NewGray(src.Rect)
	copy(out.Pix, src.Pix)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// parallelRows splits [0,h) into contiguous bands processed concurrently.
// Each band writes only its own rows, so output is independent of scheduling.
func parallelRows(h int, fn func(y0, y1 int)) {
	workers := runtime.NumCPU()
	if workers > h {
		workers = h
	}
	if workers <= 1 {
		fn(0, h)
		return
	}
	band := (h + workers - 1) / workers
	var wg sync.WaitGroup
	for y0 := 0; y0 < h; y0 += band {
		y1 := y0 + band
		if y1 > h {
			y1 = h
		}
		wg.Add(1)
		go func(a, b int) {
			defer wg.Done()
			fn(a, b)
		}(y0, y1)
	}
	wg.Wait()
}

// denoise applies a non-local-means filter: each pixel becomes a weighted
// average of pixels in its search window, weighted by how similar their
// surrounding patches are. Speckle averages away, strokes keep their edges.
func denoise(src *image.Gray, strength float64, patch, search int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if strength <= 0 || search <= 0 || w == 0 || h == 0 {
		return cloneGray(src)
	}
	if patch < 0 {
		patch = 0
	}
	area := (2*patch + 1) * (2*patch + 1)
	// weights indexed by mean squared patch distance
	var lut [255*255 + 1]float64
	hh := strength * strength
	for i := range lut {
		lut[i] = math.Exp(-float64(i) / hh)
	}
	at := func(x, y int) int {
		return int(src.Pix[clamp(y, 0, h-1)*src.Stride+clamp(x, 0, w-1)])
	}
	out := image.NewGray(src.Rect)
	parallelRows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				var sum, norm float64
				for dy := -search; dy <= search; dy++ {
					for dx := -search; dx <= search; dx++ {
						qx, qy := clamp(x+dx, 0, w-1), clamp(y+dy, 0, h-1)
						d2 := 0
						for py := -patch; py <= patch; py++ {
							for px := -patch; px <= patch; px++ {
								d := at(x+px, y+py) - at(qx+px, qy+py)
								d2 += d * d
							}
						}
						wt := lut[d2/area]
						sum += wt * float64(src.Pix[qy*src.Stride+qx])
						norm += wt
					}
				}
				out.Pix[y*out.Stride+x] = uint8(clamp(int(sum/norm+0.5), 0, 255))
			}
		}
	})
	return out
}

// equalize stretches the histogram so the cumulative distribution becomes
// close to linear. Single-level images are returned unchanged.
func equalize(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	var hist [256]int
	for y := 0; y < h; y++ {
		for _, v := range src.Pix[y*src.Stride : y*src.Stride+w] {
			hist[v]++
		}
	}
	total := w * h
	first := 0
	for first < 256 && hist[first] == 0 {
		first++
	}
	if total == 0 || hist[first] == total {
		return cloneGray(src)
	}
	var lut [256]uint8
	scale := 255.0 / float64(total-hist[first])
	sum := 0
	for i := first + 1; i < 256; i++ {
		sum += hist[i]
		lut[i] = uint8(clamp(int(math.Round(float64(sum)*scale)), 0, 255))
	}
	out := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+w]
		d := out.Pix[y*out.Stride:]
		for x, v := range s {
			d[x] = lut[v]
		}
	}
	return out
}

func normalizeBlock(block int) int {
	if block < 3 {
		block = 3
	}
	if block%2 == 0 {
		block++
	}
	return block
}

// thresholdAgainst writes 255 where src > mean-offset and 0 elsewhere.
func thresholdAgainst(src *image.Gray, mean func(x, y int) int, offset int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if int(src.Pix[y*src.Stride+x]) > mean(x, y)-offset {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// adaptiveGaussianThreshold compares each pixel with the Gaussian weighted
// mean of its block. Sigma follows the usual block-size rule.
func adaptiveGaussianThreshold(src *image.Gray, block, offset int) *image.Gray {
	block = normalizeBlock(block)
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	blurred := imaging.Blur(src, sigma)
	return thresholdAgainst(src, func(x, y int) int {
		return int(blurred.Pix[y*blurred.Stride+x*4])
	}, offset)
}

// adaptiveMeanThreshold compares each pixel with the box mean of its block,
// computed from an integral image.
func adaptiveMeanThreshold(src *image.Gray, block, offset int) *image.Gray {
	block = normalizeBlock(block)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	half := block / 2
	// ints has a zero row and column so window sums need no edge cases
	iw := w + 1
	ints := make([]int, iw*(h+1))
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(src.Pix[y*src.Stride+x])
			ints[(y+1)*iw+x+1] = ints[y*iw+x+1] + rowSum
		}
	}
	return thresholdAgainst(src, func(x, y int) int {
		x0, y0 := clamp(x-half, 0, w-1), clamp(y-half, 0, h-1)
		x1, y1 := clamp(x+half, 0, w-1)+1, clamp(y+half, 0, h-1)+1
		sum := ints[y1*iw+x1] - ints[y0*iw+x1] - ints[y1*iw+x0] + ints[y0*iw+x0]
		return sum / ((x1 - x0) * (y1 - y0))
	}, offset)
}

// open erodes then dilates the white foreground with a size x size square.
// Sizes below 2 leave the image untouched.
func open(src *image.Gray, size int) *image.Gray {
	if size < 2 {
		return cloneGray(src)
	}
	return morph(morph(src, size, true), size, false)
}

// morph erodes (min) or dilates (max) with a square element anchored at its
// centre. Pixels outside the image never influence the result.
func morph(src *image.Gray, size int, erode bool) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	lo := -(size / 2)
	hi := size - 1 + lo
	out := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if erode {
				v = 255
			}
			for dy := lo; dy <= hi; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				for dx := lo; dx <= hi; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					p := src.Pix[yy*src.Stride+xx]
					if erode && p < v {
						v = p
					} else if !erode && p > v {
						v = p
					}
				}
			}
			out.Pix[y*out.Stride+x] = v
		}
	}
	return out
}
