package registry

import "errors"

var (
	// ErrTankNotFound is returned when a tank id or name is unknown.
	ErrTankNotFound = errors.New("registry: tank not found")
	// ErrNameRequired is returned when a registration has an empty name.
	ErrNameRequired = errors.New("registry: tank name required")
	// ErrNameTaken is returned when a create races with another registration.
	ErrNameTaken = errors.New("registry: tank name already registered")
)
