// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Password length bounds, in characters.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// PasswordSymbols is the punctuation set that satisfies the symbol rule.
const PasswordSymbols = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// ValidationResult is the outcome of a password strength check.
type ValidationResult struct {
	OK     bool
	Reason string
}

// Err converts a failed result into an ErrWeakPassword error carrying the reason.
// Returns nil when the result is OK.
func (r ValidationResult) Err() error {
	if r.OK {
		return nil
	}
	return oops.Code("AUTH_WEAK_PASSWORD").
		With("reason", r.Reason).
		Wrapf(ErrWeakPassword, "%s", r.Reason)
}

// PasswordPolicy validates plaintext password strength.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy returns the policy used for registration and password changes.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: MinPasswordLength, MaxLength: MaxPasswordLength}
}

// Validate checks the password against the policy rules in order; the first
// failing rule determines the reason.
func (p PasswordPolicy) Validate(password string) ValidationResult {
	if password == "" {
		return ValidationResult{Reason: "password cannot be empty"}
	}

	length := utf8.RuneCountInString(password)
	if length < p.MinLength {
		return ValidationResult{Reason: fmt.Sprintf("password must be at least %d characters long", p.MinLength)}
	}
	if length > p.MaxLength {
		return ValidationResult{Reason: fmt.Sprintf("password cannot exceed %d characters", p.MaxLength)}
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}

	switch {
	case !upper:
		return ValidationResult{Reason: "password must contain at least one uppercase letter"}
	case !lower:
		return ValidationResult{Reason: "password must contain at least one lowercase letter"}
	case !digit:
		return ValidationResult{Reason: "password must contain at least one digit"}
	case !symbol:
		return ValidationResult{Reason: "password must contain at least one special character"}
	}

	return ValidationResult{OK: true, Reason: "password meets all requirements"}
}
