package reflection

import "github.com/pkg/errors"

// Business errors. They are wrapped with context, so match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidInput        = errors.New("invalid input")
	ErrPersistenceConflict = errors.New("persistence conflict")

	// errActiveExists is returned by the store when the one-active-per-giver
	// index rejects an insert; Start turns it into a resume.
	errActiveExists = errors.New("active reflection already exists")
)
