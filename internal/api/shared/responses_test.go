package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	RespondWithJSON(rec, req, http.StatusCreated, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRespondWithErrorCarriesTraceID(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(SetTraceID(req.Context()))

	RespondWithError(rec, req, http.StatusBadRequest, "bad input")

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bad input", resp.Error)
	assert.Len(t, resp.TraceID, TraceIDLength*2)
}

func TestRespondWithErrorAndLogSanitizes(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	internal := errors.New("pq: connection refused to db-internal:5432")
	RespondWithErrorAndLog(rec, req, http.StatusInternalServerError, "Internal server error", internal)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db-internal",
		"raw error detail must not reach the client")

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Internal server error", resp.Error)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"name":"ada"}`))
	var p payload
	require.NoError(t, DecodeJSON(req, &p))
	assert.Equal(t, "ada", p.Name)

	req = httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{broken`))
	assert.Error(t, DecodeJSON(req, &p))
}

type selfValidating struct {
	ok bool
}

func (s selfValidating) Validate() error {
	if !s.ok {
		return errors.New("not ok")
	}
	return nil
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	t.Run("custom Validate method wins", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, ValidateRequest(selfValidating{ok: true}))
		assert.Error(t, ValidateRequest(selfValidating{ok: false}))
	})

	t.Run("struct tags apply otherwise", func(t *testing.T) {
		t.Parallel()
		type tagged struct {
			Name string `validate:"required"`
		}
		assert.NoError(t, ValidateRequest(tagged{Name: "x"}))
		assert.Error(t, ValidateRequest(tagged{}))
	})
}

func TestTraceID(t *testing.T) {
	t.Parallel()

	ctx := SetTraceID(context.Background())
	id := GetTraceID(ctx)
	assert.Len(t, id, TraceIDLength*2)

	other := GetTraceID(SetTraceID(context.Background()))
	assert.NotEqual(t, id, other, "trace IDs must be unique per request")

	assert.Empty(t, GetTraceID(context.Background()))
}
