package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

func NormalizeCustomer(c Customer) Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		Email:   NormalizeEmail(c.Email),
		Phone:   strings.TrimSpace(c.Phone),
		Company: strings.TrimSpace(c.Company),
		TaxID:   strings.ToUpper(strings.TrimSpace(c.TaxID)),
	}
}

// ValidateCustomer requires name and phone, plus either an email or a
// company. Tax id is optional.
func ValidateCustomer(c Customer) error {
	missing := make([]string, 0, 3)
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.Email == "" && c.Company == "" {
		missing = append(missing, "email or company")
	}
	if c.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing customer %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if c.Email != "" && !ValidEmail(c.Email) {
		return fmt.Errorf("%w: invalid customer email", ErrInvalidInput)
	}
	return nil
}

func ValidEmail(v string) bool {
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Address == v
}

func ValidateCurrency(v string) error {
	if len(v) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
	}
	for _, r := range v {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
		}
	}
	return nil
}
