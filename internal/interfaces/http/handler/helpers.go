package handler

import (
	"time"

	"github.com/erp/ledgercore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request values are checked by binding tags first; these helpers only
// convert, and report a validation error naming the field if that slipped.

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, invalidField(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func parseOptionalDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalidField(field, "must be a decimal number")
	}
	return d, nil
}

func parseOptionalDecimal(field, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := parseDecimal(field, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseUUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, invalidField(field, "must be a valid UUID")
	}
	return id, nil
}

func parseOptionalUUID(field, s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := parseUUID(field, s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func invalidField(field, message string) error {
	return shared.NewValidationError("INVALID_FIELD", field+" "+message).WithDetail("field", field)
}
