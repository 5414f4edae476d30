package imagestore

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Encoding parameters. Stored page images keep full resolution; inline
// copies are bounded so index payloads stay small, and thumbnails are
// fixed-size for listings.
const (
	storedQuality = 85

	inlineMaxEdge = 800
	inlineQuality = 60

	thumbnailSize    = 200
	thumbnailQuality = 85
)

// EncodeJPEG encodes the image as a stored-quality JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: storedQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeInline downscales the image to at most inlineMaxEdge on its longest
// edge and returns it as a base64 data URI.
func EncodeInline(img image.Image) (string, error) {
	return encodeDataURI(scaleToFit(img, inlineMaxEdge), inlineQuality)
}

// EncodeThumbnail scales the image to fit inside a thumbnailSize square and
// returns it as a base64 data URI.
func EncodeThumbnail(img image.Image) (string, error) {
	return encodeDataURI(scaleToFit(img, thumbnailSize), thumbnailQuality)
}

func encodeDataURI(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// scaleToFit downscales img so its longest edge is at most maxEdge,
// preserving aspect ratio. Images already within bounds are returned
// unchanged.
func scaleToFit(img image.Image, maxEdge int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxEdge && h <= maxEdge {
		return img
	}

	var dw, dh int
	if w >= h {
		dw = maxEdge
		dh = h * maxEdge / w
	} else {
		dh = maxEdge
		dw = w * maxEdge / h
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
