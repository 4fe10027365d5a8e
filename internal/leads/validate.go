package leads

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s()\-]+$`)
)

const minPhoneLength = 10

// ValidateOptions describes per-form requirements.
type ValidateOptions struct {
	// RequireSubject is set by forms where the subject select is mandatory.
	RequireSubject bool
}

// ValidationResult maps field names to user-facing error strings.
type ValidationResult struct {
	Errors map[string]string
}

// Valid reports whether no field failed.
func (v ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

// Validate checks presence and shape of the submitted fields. The email and
// phone checks are deliberately loose sanity checks.
func Validate(form RawFormInput, opts ValidateOptions) ValidationResult {
	errs := make(map[string]string)

	if strings.TrimSpace(form.Name) == "" {
		errs["name"] = "Informe seu nome."
	}

	email := strings.TrimSpace(form.Email)
	switch {
	case email == "":
		errs["email"] = "Informe seu e-mail."
	case !ValidEmail(email):
		errs["email"] = "E-mail inválido."
	}

	phone := strings.TrimSpace(form.Phone)
	switch {
	case phone == "":
		errs["phone"] = "Informe seu telefone."
	case !ValidPhone(phone):
		errs["phone"] = "Telefone inválido."
	}

	if strings.TrimSpace(form.Operator) == "" {
		errs["operator"] = "Selecione uma operadora."
	}

	if opts.RequireSubject && strings.TrimSpace(form.Subject) == "" {
		errs["subject"] = "Selecione um assunto."
	}

	if len(errs) == 0 {
		return ValidationResult{}
	}
	return ValidationResult{Errors: errs}
}

// ValidEmail reports whether email has a local@domain.tld shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// ValidPhone accepts digits, spaces, parentheses, hyphens and a leading plus,
// with at least ten characters once whitespace is removed.
func ValidPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if !phonePattern.MatchString(phone) {
		return false
	}
	compact := strings.Join(strings.Fields(phone), "")
	return len(compact) >= minPhoneLength
}
