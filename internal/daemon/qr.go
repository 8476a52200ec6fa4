package daemon

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// PairingString is the payload encoded into the pairing QR code: the local
// socket path and auth token a remote debug client needs to attach.
func PairingString(socketPath, token string) string {
	return fmt.Sprintf("surfbridge://%s?token=%s", socketPath, token)
}

// GenerateQRCodeASCII renders a terminal-friendly ASCII QR code encoding the
// socket path and auth token, for pairing a remote client without typing
// either by hand.
func GenerateQRCodeASCII(socketPath, token string) (string, error) {
	q, err := qrcode.New(PairingString(socketPath, token), qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("daemon: generate qr code: %w", err)
	}
	return q.ToSmallString(false), nil
}
