package qrcode

import (
	"bytes"
	"image/png"
	"testing"
)

func TestPayload(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		id     string
		want   string
	}{
		{"session id verbatim", "https://blanc.example", "session_1700000000_abc", "session_1700000000_abc"},
		{"address verbatim", "https://blanc.example", "0xAbC123", "0xAbC123"},
		{"numeric post id", "https://blanc.example", "42", "https://blanc.example/verify?id=42"},
		{"trailing slash origin", "https://blanc.example/", "42", "https://blanc.example/verify?id=42"},
		{"other id escaped", "https://blanc.example", "a b", "https://blanc.example/verify?id=a+b"},
		{"no origin", "", "7", "/verify?id=7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Payload(tt.origin, tt.id); got != tt.want {
				t.Errorf("Payload(%q, %q) = %q, want %q", tt.origin, tt.id, got, tt.want)
			}
		})
	}
}

func TestClampSize(t *testing.T) {
	tests := map[int]int{0: DefaultSize, -5: DefaultSize, 10: MinSize, 200: 200, 5000: MaxSize}
	for in, want := range tests {
		if got := ClampSize(in); got != want {
			t.Errorf("ClampSize(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPNG(t *testing.T) {
	data, err := PNG("session_abc", 128)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("expected valid PNG: %v", err)
	}
	if img.Bounds().Dx() != 128 {
		t.Errorf("expected 128px image, got %d", img.Bounds().Dx())
	}
}

func TestPNGEmptyPayload(t *testing.T) {
	if _, err := PNG("", 128); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
