package ocr

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
)

func blank(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
}

func noisy(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := blank(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(rng.Intn(256))
			img.Set(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func TestPreprocessBlankStaysWhite(t *testing.T) {
	out := Preprocess(blank(60, 40), DefaultPreprocessOptions())
	if out.Bounds().Dx() != 60 || out.Bounds().Dy() != 40 {
		t.Fatalf("unexpected bounds %v", out.Bounds())
	}
	for i, v := range out.Pix {
		if v != 255 {
			t.Fatalf("pixel %d = %d, want 255", i, v)
		}
	}
}

func TestPreprocessIsBinaryAndDeterministic(t *testing.T) {
	img := noisy(48, 32, 7)
	a := Preprocess(img, DefaultPreprocessOptions())
	b := Preprocess(img, DefaultPreprocessOptions())
	if !bytes.Equal(a.Pix, b.Pix) {
		t.Fatalf("preprocess output differs between runs")
	}
	for i, v := range a.Pix {
		if v != 0 && v != 255 {
			t.Fatalf("pixel %d = %d, not binary", i, v)
		}
	}
}

func TestPreprocessKeepsStroke(t *testing.T) {
	img := blank(120, 80)
	for y := 20; y < 60; y++ {
		for x := 50; x < 60; x++ {
			img.Set(x, y, color.NRGBA{0, 0, 0, 255})
		}
	}
	for _, m := range []ThresholdMethod{ThresholdGaussian, ThresholdMean} {
		opts := DefaultPreprocessOptions()
		opts.Method = m
		out := Preprocess(img, opts)
		if v := out.GrayAt(55, 40).Y; v != 0 {
			t.Fatalf("method %d: stroke centre = %d, want 0", m, v)
		}
		if v := out.GrayAt(5, 5).Y; v != 255 {
			t.Fatalf("method %d: background = %d, want 255", m, v)
		}
	}
}

func TestEqualizeStretchesTwoLevels(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 1))
	g.Pix = []uint8{100, 100, 150, 150}
	out := equalize(g)
	want := []uint8{0, 0, 255, 255}
	if !bytes.Equal(out.Pix, want) {
		t.Fatalf("equalize = %v, want %v", out.Pix, want)
	}
}

func TestOpenRemovesSpecks(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 12, 12))
	g.SetGray(1, 1, color.Gray{255})
	for y := 5; y < 10; y++ {
		for x := 5; x < 10; x++ {
			g.SetGray(x, y, color.Gray{255})
		}
	}
	if same := open(g, 1); !bytes.Equal(same.Pix, g.Pix) {
		t.Fatalf("minimal element must leave the image unchanged")
	}
	out := open(g, 3)
	if out.GrayAt(1, 1).Y != 0 {
		t.Fatalf("isolated speck survived opening")
	}
	if out.GrayAt(7, 7).Y != 255 || out.GrayAt(5, 5).Y != 255 {
		t.Fatalf("square eroded by opening")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not an image")))
	if !errors.Is(err, ErrImageLoad) {
		t.Fatalf("expected ErrImageLoad, got %v", err)
	}
	var le *ImageLoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *ImageLoadError, got %T", err)
	}
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, blank(10, 6), imaging.PNG); err != nil {
		t.Fatal(err)
	}
	img, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 10 {
		t.Fatalf("width = %d", img.Bounds().Dx())
	}
}
