package vault

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Password length limits. Save accepts any non-empty password; these apply
// to passwords chosen interactively.
const (
	DefaultMinPasswordLength = 8
	MaxPasswordLength        = 128
)

// PasswordStrength represents the strength level of a password
type PasswordStrength int

const (
	PasswordWeak PasswordStrength = iota
	PasswordFair
	PasswordGood
	PasswordStrong
)

// String returns a human-readable representation of password strength
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "weak"
	case PasswordFair:
		return "fair"
	case PasswordGood:
		return "good"
	case PasswordStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// PasswordValidationResult contains the result of password validation
type PasswordValidationResult struct {
	Valid    bool             // Whether password meets minimum requirements
	Strength PasswordStrength // Estimated strength
	Warnings []string         // Suggestions for improvement (not errors)
}

var (
	upperRe   = regexp.MustCompile(`\p{Lu}`)
	lowerRe   = regexp.MustCompile(`\p{Ll}`)
	digitRe   = regexp.MustCompile(`\p{Nd}`)
	specialRe = regexp.MustCompile(`[^\p{L}\p{Nd}]`)
)

// ValidatePassword checks a new vault password. Length is counted in
// characters; a minLength below 1 falls back to DefaultMinPasswordLength.
// Complexity only produces warnings.
func ValidatePassword(password string, minLength int) *PasswordValidationResult {
	if minLength < 1 {
		minLength = DefaultMinPasswordLength
	}

	result := &PasswordValidationResult{
		Valid:    true,
		Strength: PasswordFair,
	}

	length := utf8.RuneCountInString(password)
	if length < minLength {
		result.Valid = false
		result.Strength = PasswordWeak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Password must be at least %d characters", minLength))
		return result
	}
	if length > MaxPasswordLength {
		result.Valid = false
		result.Strength = PasswordWeak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Password must be at most %d characters", MaxPasswordLength))
		return result
	}

	complexity := 0
	for _, re := range []*regexp.Regexp{upperRe, lowerRe, digitRe, specialRe} {
		if re.MatchString(password) {
			complexity++
		}
	}

	if complexity < 2 {
		result.Warnings = append(result.Warnings,
			"Consider using a mix of uppercase, lowercase, numbers, and symbols")
	}
	if length < 12 {
		result.Warnings = append(result.Warnings,
			"Longer passwords (12+ characters) are more secure")
	}

	switch {
	case complexity >= 3 && length >= 16:
		result.Strength = PasswordStrong
	case complexity >= 2 && length >= 12:
		result.Strength = PasswordGood
	case complexity >= 2 || length >= 12:
		result.Strength = PasswordFair
	default:
		result.Strength = PasswordWeak
	}

	return result
}
