package telephony

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultCountryCode is prepended to bare 10-digit national numbers.
const defaultCountryCode = "1"

var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// FormatE164 normalizes a stored phone number to E.164. Inputs like
// "(555) 123-4567" become "+15551234567". Numbers that cannot be shaped
// into a valid E.164 number are rejected rather than dialed as-is.
func FormatE164(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty phone number")
	}

	hadPlus := strings.HasPrefix(trimmed, "+")

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	num := digits.String()
	if !hadPlus && len(num) == 10 {
		num = defaultCountryCode + num
	}

	formatted := "+" + num
	if !e164Pattern.MatchString(formatted) {
		return "", fmt.Errorf("phone number %q is not a valid E.164 number", raw)
	}
	return formatted, nil
}
