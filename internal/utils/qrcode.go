package utils

import (
	"bytes"
	"image/png"

	"github.com/google/uuid"

	"github.com/cbtwine/attendance/internal/scanner"
)

// NewQRPayload returns a fresh opaque payload for a visitor card.
func NewQRPayload() string {
	return uuid.NewString()
}

// QRCodePNG renders payload as a printable PNG of size×size pixels.
func QRCodePNG(payload string, size int) ([]byte, error) {
	img, err := scanner.EncodeQR(payload, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
