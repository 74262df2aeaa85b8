package utils

import "strings"

// NewNullString is a helper for string pointers, returning nil if string is empty.
// Useful for fields that are optional and should be NULL in DB if not provided.
func NewNullString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// NormalizePhone strips spaces and dashes, and prefixes bare 10 digit numbers with the +91 country code.
func NormalizePhone(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	p := replacer.Replace(strings.TrimSpace(phone))
	if len(p) == 10 && !strings.HasPrefix(p, "+") {
		return "+91" + p
	}
	if len(p) == 12 && strings.HasPrefix(p, "91") {
		return "+" + p
	}
	return p
}
