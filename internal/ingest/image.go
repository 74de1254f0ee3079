package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
)

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	return img, nil
}

// flatten composites img over white and returns an opaque RGB(A) image.
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func encodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}

// fitWithin scales w×h down to fit a max×max box, keeping the aspect ratio.
func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		return max, maxInt(1, h*max/w)
	}
	return maxInt(1, w*max/h), max
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func writeThumbnail(src, dst string, size int) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	img, err := decode(data)
	if err != nil {
		return err
	}
	b := img.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), size)
	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), flatten(img), image.Rect(0, 0, b.Dx(), b.Dy()), draw.Src, nil)

	var buf bytes.Buffer
	if err := encodeJPEG(&buf, thumb, 85); err != nil {
		return err
	}
	return os.WriteFile(dst, buf.Bytes(), 0o644)
}
