package coordinator

import (
	"net/mail"
	"strings"

	"formplane/internal/store"
)

const (
	minAge        = 18
	maxNameChars  = 200
	maxEmailChars = 254
	maxFieldChars = 500
)

func normalize(a store.Attributes) store.Attributes {
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.TrimSpace(a.Email)
	a.Gender = strings.TrimSpace(a.Gender)
	a.Address = strings.TrimSpace(a.Address)
	return a
}

// validate checks normalized attributes. An age of zero means not given.
func validate(a store.Attributes) error {
	switch {
	case a.Name == "":
		return &ValidationError{Field: "name", Message: "is required"}
	case len(a.Name) > maxNameChars:
		return &ValidationError{Field: "name", Message: "is too long"}
	case a.Email == "":
		return &ValidationError{Field: "email", Message: "is required"}
	case len(a.Email) > maxEmailChars:
		return &ValidationError{Field: "email", Message: "is too long"}
	case a.Age < 0:
		return &ValidationError{Field: "age", Message: "must not be negative"}
	case a.Age != 0 && a.Age < minAge:
		return &ValidationError{Field: "age", Message: "must be at least 18"}
	case len(a.Gender) > maxFieldChars:
		return &ValidationError{Field: "gender", Message: "is too long"}
	case len(a.Address) > maxFieldChars:
		return &ValidationError{Field: "address", Message: "is too long"}
	}

	addr, err := mail.ParseAddress(a.Email)
	if err != nil || addr.Address != a.Email {
		return &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	return nil
}
