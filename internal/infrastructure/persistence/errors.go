package persistence

import (
	"errors"

	"github.com/erp/ledgercore/internal/domain/shared"
	"gorm.io/gorm"
)

// translate maps gorm sentinel errors onto domain errors. Other errors pass through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrDuplicateKey
	}
	return err
}
