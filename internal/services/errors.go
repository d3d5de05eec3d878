// internal/services/errors.go
package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/permit"
)

// ErrConcurrentModification is returned when the application changed between
// load and commit. Callers reload and retry.
var ErrConcurrentModification = errors.New("application was modified concurrently")

// ErrGateway wraps payment gateway failures.
var ErrGateway = errors.New("payment gateway error")

// notFound maps gorm.ErrRecordNotFound onto the domain not-found kind.
func notFound(err error, kind, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &permit.NotFoundError{Kind: kind, Key: key}
	}
	return err
}
