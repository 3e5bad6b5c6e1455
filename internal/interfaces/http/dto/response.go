package dto

import (
	"github.com/erp/ledgercore/internal/domain/shared"
)

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Kind      string             `json:"kind,omitempty"`
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"requestId,omitempty"`
	Details   map[string]any     `json:"details,omitempty"`
	Fields    []ValidationDetail `json:"fields,omitempty"`
}

// ValidationDetail describes one field that failed request validation
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

// Meta represents pagination metadata
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewPageResponse creates a success response carrying page metadata
func NewPageResponse[T any](page *shared.Paginated[T]) Response {
	return Response{
		Success: true,
		Data:    page.Items,
		Meta: &Meta{
			Total:      page.Total,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: page.TotalPages,
		},
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}
}

// NewDomainErrorResponse renders a domain error. Messages and details of
// integrity and internal failures are replaced with a generic text.
func NewDomainErrorResponse(err *shared.DomainError, requestID string) Response {
	info := &ErrorInfo{
		Kind:      string(err.Kind),
		Code:      err.Code,
		Message:   err.Message,
		RequestID: requestID,
	}
	if ExposesDetails(err.Kind) {
		info.Details = err.Details
	} else {
		info.Message = "An unexpected error occurred"
	}
	return Response{Success: false, Error: info}
}

// NewValidationErrorResponse creates a binding validation error response
func NewValidationErrorResponse(message, requestID string, fields []ValidationDetail) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Kind:      string(shared.KindValidation),
			Code:      ErrCodeValidation,
			Message:   message,
			RequestID: requestID,
			Fields:    fields,
		},
	}
}

// PageQuery carries common list parameters
type PageQuery struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
}
