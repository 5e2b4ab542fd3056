package reflection

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CategoryRef identifies a category either by number or by name. Exactly one
// of the two is set; build it with CategoryByNo, CategoryByName or
// ParseCategoryRef.
type CategoryRef struct {
	No   int
	Name string
}

func CategoryByNo(no int) CategoryRef { return CategoryRef{No: no} }

func CategoryByName(name string) CategoryRef { return CategoryRef{Name: strings.TrimSpace(name)} }

func (r CategoryRef) String() string {
	if r.Name != "" {
		return strconv.Quote(r.Name)
	}
	return strconv.Itoa(r.No)
}

// ParseCategoryRef normalizes the category field of a request body. A JSON
// integer or a string of digits selects by number, any other non-empty string
// selects by name.
func ParseCategoryRef(raw json.RawMessage) (CategoryRef, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return CategoryRef{}, errors.Wrap(ErrInvalidInput, "category is required")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return CategoryRef{}, errors.Wrap(ErrInvalidInput, "category must be a string or an integer")
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return CategoryRef{}, errors.Wrap(ErrInvalidInput, "category is required")
		}
		if isDigits(s) {
			return numberRef(s)
		}
		return CategoryByName(s), nil
	}

	return numberRef(string(raw))
}

func numberRef(s string) (CategoryRef, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return CategoryRef{}, errors.Wrapf(ErrInvalidInput, "invalid category number %s", s)
	}
	return CategoryByNo(n), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
