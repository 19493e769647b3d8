// Package qrcode renders the codes a second device scans to join a session
// or verify a post.
package qrcode

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	qr "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 256
	MinSize     = 64
	MaxSize     = 1024

	// SessionPrefix marks identifiers produced for join sessions.
	SessionPrefix = "session_"
)

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// Payload returns the string encoded into the QR code for id. Session
// identifiers and wallet addresses are encoded verbatim so scanners can
// act on them directly; anything else, such as a numeric post ID, becomes
// a verification link under origin.
func Payload(origin, id string) string {
	if strings.HasPrefix(id, SessionPrefix) || addressRe.MatchString(id) {
		return id
	}
	return strings.TrimRight(origin, "/") + "/verify?id=" + url.QueryEscape(id)
}

// ClampSize bounds size to [MinSize, MaxSize]; non-positive sizes select
// DefaultSize.
func ClampSize(size int) int {
	switch {
	case size <= 0:
		return DefaultSize
	case size < MinSize:
		return MinSize
	case size > MaxSize:
		return MaxSize
	default:
		return size
	}
}

// PNG encodes payload as a PNG image of roughly size pixels square.
func PNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qrcode: empty payload")
	}
	png, err := qr.Encode(payload, qr.Medium, ClampSize(size))
	if err != nil {
		return nil, fmt.Errorf("qrcode: encode: %w", err)
	}
	return png, nil
}
