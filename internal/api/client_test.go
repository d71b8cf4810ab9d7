package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

type echo struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

func TestClientSendsHeadersAndQuery(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":7,"title":"Write docs"}]`))
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL + "/rest/v1", APIKey: "secret"})
	require.NoError(t, err)

	query := Page(url.Values{"order": {Order("created_at", true)}, "priority": {Eq("high")}}, 6, 12)

	var out []echo
	require.NoError(t, client.Patch(context.Background(), "/tasks", query, map[string]any{"completed": true}, &out))

	require.Equal(t, http.MethodPatch, got.Method)
	require.Equal(t, "/rest/v1/tasks", got.URL.Path)
	require.Equal(t, "created_at.desc", got.URL.Query().Get("order"))
	require.Equal(t, "eq.high", got.URL.Query().Get("priority"))
	require.Equal(t, "6", got.URL.Query().Get("limit"))
	require.Equal(t, "12", got.URL.Query().Get("offset"))
	require.Equal(t, "secret", got.Header.Get(HeaderAPIKey))
	require.Equal(t, "Bearer secret", got.Header.Get("Authorization"))
	require.Equal(t, PreferRepresentation, got.Header.Get(HeaderPrefer))
	require.Equal(t, "application/json", got.Header.Get("Content-Type"))
	require.NotEmpty(t, got.Header.Get(HeaderRequestID))
	require.JSONEq(t, `{"completed":true}`, string(gotBody))

	require.Equal(t, []echo{{ID: 7, Title: "Write docs"}}, out)
}

func TestClientEmptyBodyLeavesOutUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL})
	require.NoError(t, err)

	var out []echo
	require.NoError(t, client.Delete(context.Background(), "/tasks", ByID(3), &out))
	require.Nil(t, out)
}

func TestClientStatusErrorUsesPostgRESTMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorBody{Code: "23502", Message: "null value in column \"title\""})
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL})
	require.NoError(t, err)

	err = client.Post(context.Background(), "/tasks", map[string]any{}, nil)
	require.Error(t, err)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, KindStatus, apiErr.Kind)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "23502", apiErr.Code)
	require.Equal(t, `null value in column "title"`, apiErr.Message)
	require.Equal(t, KindStatus, KindOf(err))
	require.False(t, IsNotFound(err))
}

func TestClientStatusErrorPlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL})
	require.NoError(t, err)

	err = client.Get(context.Background(), "/categories", nil, nil)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "gateway down", apiErr.Message)
}

func TestClientDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL})
	require.NoError(t, err)

	var out []echo
	err = client.Get(context.Background(), "/tasks", nil, &out)
	require.Equal(t, KindDecode, KindOf(err))
}

func TestClientTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client, err := New(Options{BaseURL: server.URL})
	require.NoError(t, err)

	err = client.Get(context.Background(), "/tasks", nil, nil)
	require.Equal(t, KindTransport, KindOf(err))
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.ErrorIs(t, err, errBaseURLRequired)

	_, err = New(Options{BaseURL: "localhost/rest"})
	require.Error(t, err)
}
