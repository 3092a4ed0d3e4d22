package scanner

import (
	"errors"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// QRDecoder decodes QR codes with gozxing.
type QRDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewQRDecoder returns a decoder tuned for camera frames.
func NewQRDecoder() *QRDecoder {
	return &QRDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode returns the text of the QR code in img, or ErrNoCode when none
// (or only a damaged one) is visible.
func (d *QRDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize frame: %w", err)
	}
	res, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		var (
			notFound gozxing.NotFoundException
			checksum gozxing.ChecksumException
			format   gozxing.FormatException
		)
		if errors.As(err, &notFound) || errors.As(err, &checksum) || errors.As(err, &format) {
			return "", ErrNoCode
		}
		return "", err
	}
	return res.GetText(), nil
}

// EncodeQR renders payload as a size×size QR code image.
func EncodeQR(payload string, size int) (image.Image, error) {
	if size <= 0 {
		size = 256
	}
	m, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, err
	}
	return m, nil
}
