package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}

	r := httptest.NewRequest("POST", "/api/v1/customers", strings.NewReader(`{"name":"Amina","phone":"+254700000001"}`))
	require.NoError(t, ParseJSON(r, &req))
	assert.Equal(t, "Amina", req.Name)
	assert.Equal(t, "+254700000001", req.Phone)
}

func TestParseJSONRejectsMalformedBody(t *testing.T) {
	var req struct{}
	r := httptest.NewRequest("POST", "/api/v1/customers", strings.NewReader(`{"name":`))

	err := ParseJSON(r, &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestParseJSONOrError(t *testing.T) {
	t.Run("valid body", func(t *testing.T) {
		var req struct {
			Amount string `json:"amount"`
		}
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/v1/expenses", strings.NewReader(`{"amount":"1500.00"}`))

		ok := ParseJSONOrError(rec, r, &req)
		assert.True(t, ok)
		assert.Equal(t, "1500.00", req.Amount)
	})

	t.Run("malformed body writes 400", func(t *testing.T) {
		var req struct{}
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/api/v1/expenses", strings.NewReader(`not json`))

		ok := ParseJSONOrError(rec, r, &req)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody(t, rec)["error"], "invalid JSON")
	})
}

func TestGetPathVars(t *testing.T) {
	router := mux.NewRouter()
	var got map[string]string
	router.HandleFunc("/api/v1/sales/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = GetPathVars(r)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/sales/7f3c2a10", nil))

	assert.Equal(t, "7f3c2a10", got["id"])
}

func TestParseQueryInt(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/sales?limit=25", nil)
		val, err := ParseQueryInt(r, "limit", 50)
		require.NoError(t, err)
		assert.Equal(t, 25, val)
	})

	t.Run("absent uses default", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/sales", nil)
		val, err := ParseQueryInt(r, "limit", 50)
		require.NoError(t, err)
		assert.Equal(t, 50, val)
	})

	t.Run("non-numeric", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/sales?limit=many", nil)
		_, err := ParseQueryInt(r, "limit", 50)
		assert.Error(t, err)
	})
}
