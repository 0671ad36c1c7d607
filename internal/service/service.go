// Package service implements the account, warehouse and product use cases
// on top of a store.Store.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"magazyn/internal/apperr"
	"magazyn/internal/store"
)

// fromStore converts storage sentinels into client facing errors. Errors
// that are already classified pass through untouched. Anything else,
// store.ErrUnavailable included, stays internal and is answered with a
// generic message.
func fromStore(err error, op, notFound string) error {
	var classified *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &classified):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("%s", notFound)
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict("%s already exists", op)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func credentials(name, password, what string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return "", "", apperr.Validation("%s name and password are required", what)
	}
	return name, password, nil
}
