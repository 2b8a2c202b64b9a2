package qr

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// DataURL renders a pairing payload as a PNG data URL for the dashboard.
func DataURL(payload string, size int) (string, error) {
	if strings.TrimSpace(payload) == "" {
		return "", errors.New("empty qr payload")
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
