package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/ledgercore/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLine struct {
	Kind   string `json:"kind" binding:"required,oneof=INVENTORY SERVICE"`
	Amount string `json:"amount" binding:"required_if=Kind SERVICE,omitempty,decimal_positive"`
}

type testRequest struct {
	Date  string     `json:"date" binding:"required,datetime=2006-01-02"`
	Total string     `json:"total" binding:"omitempty,decimal"`
	Lines []testLine `json:"lines" binding:"required,min=1,dive"`
}

func bindRouter() *gin.Engine {
	SetupValidator()
	r := gin.New()
	r.Use(RequestID(), BodyLimit(256))
	r.POST("/x", func(c *gin.Context) {
		var req testRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleBindError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func post(r *gin.Engine, body string) (*httptest.ResponseRecorder, dto.Response) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	var resp dto.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHandleBindError(t *testing.T) {
	r := bindRouter()

	t.Run("valid request", func(t *testing.T) {
		w, _ := post(r, `{"date":"2024-03-01","total":"10.50","lines":[{"kind":"SERVICE","amount":"10.50"}]}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("field errors use json paths", func(t *testing.T) {
		w, resp := post(r, `{"date":"03/01/2024","total":"ten","lines":[{"kind":"SERVICE","amount":"-1"}]}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)

		byField := map[string]dto.ValidationDetail{}
		for _, f := range resp.Error.Fields {
			byField[f.Field] = f
		}
		assert.Equal(t, "datetime", byField["date"].Tag)
		assert.Equal(t, "decimal", byField["total"].Tag)
		assert.Equal(t, "decimal_positive", byField["lines[0].amount"].Tag)
		assert.Equal(t, "Must be a decimal number greater than zero", byField["lines[0].amount"].Message)
	})

	t.Run("required_if", func(t *testing.T) {
		w, resp := post(r, `{"date":"2024-03-01","lines":[{"kind":"SERVICE"}]}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Len(t, resp.Error.Fields, 1)
		assert.Equal(t, "required_if", resp.Error.Fields[0].Tag)
	})

	t.Run("empty lines", func(t *testing.T) {
		_, resp := post(r, `{"date":"2024-03-01","lines":[]}`)
		require.Len(t, resp.Error.Fields, 1)
		assert.Equal(t, "Must contain at least 1 items", resp.Error.Fields[0].Message)
	})

	t.Run("malformed json", func(t *testing.T) {
		w, resp := post(r, `{"date":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	})

	t.Run("body over the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"date":"`+strings.Repeat("9", 400)+`"}`))
		req.ContentLength = -1
		w := serve(r, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestRegisterDecimalTags(t *testing.T) {
	v := validator.New()
	require.NoError(t, registerDecimalTags(v))

	tests := []struct {
		tag, value string
		ok         bool
	}{
		{"decimal", "12.50", true},
		{"decimal", "-1", true},
		{"decimal", "abc", false},
		{"decimal_positive", "0.01", true},
		{"decimal_positive", "0", false},
		{"decimal_positive", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.tag+"/"+tt.value, func(t *testing.T) {
			err := v.Var(tt.value, tt.tag)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
