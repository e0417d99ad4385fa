package auth

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// RenderQR encodes content as a QR code drawn with half-block characters, two
// modules per text row.
func RenderQR(content string) (string, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return q.ToSmallString(false), nil
}
