package imagestore

import (
	"bytes"
	"image"
	"image/jpeg"
)

func decodeJPEG(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}
