package helper

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Hanya terima digit, +, -, (, ), spasi
	validPhoneFormat = regexp.MustCompile(`^[\d\s\+\-\(\)]+$`)
	nonDigits        = regexp.MustCompile(`[^\d]`)
)

// NormalizePhone converts an Indian mobile number to E.164 (+91XXXXXXXXXX).
func NormalizePhone(phone string) (string, error) {
	if !validPhoneFormat.MatchString(phone) {
		return "", fmt.Errorf("invalid phone number format: contains invalid characters")
	}

	cleaned := nonDigits.ReplaceAllString(phone, "")

	// 0XXXXXXXXXX → XXXXXXXXXX (trunk prefix)
	if len(cleaned) == 11 && strings.HasPrefix(cleaned, "0") {
		cleaned = cleaned[1:]
	}
	// 91XXXXXXXXXX → XXXXXXXXXX
	if len(cleaned) == 12 && strings.HasPrefix(cleaned, "91") {
		cleaned = cleaned[2:]
	}

	if len(cleaned) != 10 {
		return "", fmt.Errorf("invalid phone number length")
	}
	// mobile numbers start with 6-9
	if cleaned[0] < '6' {
		return "", fmt.Errorf("invalid Indian mobile number. Example: +919876543210")
	}

	return "+91" + cleaned, nil
}
