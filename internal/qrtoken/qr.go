package qrtoken

import (
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// ScanURL builds the browser-openable redemption URL embedded in QR images,
// so a bare phone camera can record attendance without a JSON client.
func ScanURL(baseURL, token string) string {
	return baseURL + "/api/admin/scan-attendance?token=" + url.QueryEscape(token)
}

// PNG renders the given content as a QR code image.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
