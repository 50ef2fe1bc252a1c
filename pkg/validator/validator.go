package validator

import (
	"fmt"
	"sort"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/vedran77/pulsechat/internal/identity"
)

const (
	MaxDisplayNameLength = 100
	MaxMessageLength     = 5000
)

var validate = playground.New()

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// Error implements error so a ValidationErrors can travel up a call chain.
func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, v[f]))
	}
	return strings.Join(parts, "; ")
}

// ValidateDisplayName checks a name typed at login or in the add-user dialog.
func ValidateDisplayName(name string) ValidationErrors {
	errs := make(ValidationErrors)

	name = strings.TrimSpace(name)
	if name == "" {
		errs.Add("name", "Please enter a username")
	} else if validate.Var(name, fmt.Sprintf("max=%d", MaxDisplayNameLength)) != nil {
		errs.Add("name", "Username is too long")
	}

	return errs
}

// ValidateUserID checks an identifier that must already be canonical.
func ValidateUserID(field, id string) ValidationErrors {
	errs := make(ValidationErrors)

	if id == "" {
		errs.Add(field, "User ID is required")
	} else if validate.Var(id, fmt.Sprintf("max=%d", MaxDisplayNameLength)) != nil {
		errs.Add(field, "User ID is too long")
	} else if !identity.IsCanonical(id) {
		errs.Add(field, "User ID can only contain lowercase letters, numbers, @, _ and -")
	}

	return errs
}

func ValidateMessage(text string) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(text) == "" {
		errs.Add("text", "Message text is required")
	} else if validate.Var(text, fmt.Sprintf("max=%d", MaxMessageLength)) != nil {
		errs.Add("text", "Message is too long")
	}

	return errs
}
