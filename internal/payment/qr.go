package payment

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	qrcode "github.com/skip2/go-qrcode"
)

// QR holds the pre-rendered UPI payment QR code. It is generated once at
// startup and the image is reused for every payment prompt.
type QR struct {
	URI  string
	Path string
}

// GenerateQR encodes a upi://pay URI for the configured payee into a PNG under
// dir and returns both. dir defaults to the system temp directory.
func GenerateQR(upiID, payeeName string, amountINR int, dir string) (*QR, error) {
	if upiID == "" {
		return nil, fmt.Errorf("upi id is required")
	}
	if dir == "" {
		dir = os.TempDir()
	}

	uri := fmt.Sprintf("upi://pay?pa=%s&pn=%s&am=%d", upiID, url.QueryEscape(payeeName), amountINR)
	path := filepath.Join(dir, "upi_qr.png")
	if err := qrcode.WriteFile(uri, qrcode.Medium, 512, path); err != nil {
		return nil, fmt.Errorf("encode payment qr: %w", err)
	}

	return &QR{URI: uri, Path: path}, nil
}
