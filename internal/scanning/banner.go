package scanning

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const (
	// DefaultBannerSize is how many bytes a probe reads from an open port.
	DefaultBannerSize = 100

	httpPort = 80
)

// httpProbe nudges HTTP servers into answering before the client speaks.
var httpProbe = []byte("HEAD / HTTP/1.0\r\n\r\n")

// DecodeBanner turns raw banner bytes into trimmed text. Invalid UTF-8 is
// decoded as Windows-1252 so every byte maps to a printable rune.
func DecodeBanner(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if utf8.Valid(raw) {
		text = string(raw)
	} else if decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw); err == nil {
		text = string(decoded)
	} else {
		text = strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}

	return strings.TrimSpace(text)
}

// probePayload returns the bytes written before reading from port, if any.
func probePayload(port uint16) []byte {
	if port == httpPort {
		return httpProbe
	}
	return nil
}
