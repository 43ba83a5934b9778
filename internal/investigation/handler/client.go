package handler

import (
	"strings"

	"github.com/mssola/useragent"
)

const maxClientLength = 128

// describeClient reduces a User-Agent header to a short label for audit
// events, e.g. "Firefox 128.0 (Linux x86_64)" or "bot: Googlebot".
func describeClient(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	ua := useragent.New(header)
	name, version := ua.Browser()

	var label string
	switch {
	case ua.Bot():
		label = "bot: " + name
	case name == "" || strings.EqualFold(name, header):
		label = header
	default:
		label = strings.TrimSpace(name + " " + version)
		if os := ua.OS(); os != "" {
			label += " (" + os + ")"
		}
	}
	if len(label) > maxClientLength {
		label = label[:maxClientLength]
	}
	return label
}
