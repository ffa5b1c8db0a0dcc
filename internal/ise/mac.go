package ise

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMAC is returned when an input cannot be interpreted as a MAC
// address.
var ErrInvalidMAC = errors.New("invalid mac address")

// NormalizeMAC reformats a MAC address written with any common delimiter
// style (colons, hyphens, dots, spaces or none) into four-digit groups joined
// by sep. Case is preserved. Inputs that do not contain exactly twelve hex
// digits are rejected, never guessed at.
func NormalizeMAC(mac, sep string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(mac))

	if len(cleaned) != 12 || !isHex(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}

	return cleaned[0:4] + sep + cleaned[4:8] + sep + cleaned[8:12], nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return false
		}
	}
	return true
}
