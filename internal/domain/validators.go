package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	joinCodeRegex = regexp.MustCompile(`^[A-Z0-9]{4,16}$`)
)

// ValidateEmail checks if an email address is valid.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateJoinCode checks the shape of an exam join code.
func ValidateJoinCode(code string) error {
	if !joinCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid join code: %q", code)
	}
	return nil
}

// ValidateConfidence checks that a detector confidence lies in [0,1].
func ValidateConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return fmt.Errorf("confidence must be within [0,1], got %v", c)
	}
	return nil
}
