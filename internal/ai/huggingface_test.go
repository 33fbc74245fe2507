package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHuggingFaceEmbedFlatVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req huggingfaceEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "some text", req.Inputs)
		_, _ = w.Write([]byte(`[0.1, 0.2, 0.3]`))
	}))
	defer srv.Close()

	p := &huggingfaceEmbedProvider{baseURL: srv.URL}
	vec, err := p.Embed(context.Background(), "", "some text")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestHuggingFaceEmbedNestedVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1, 2, 3]]`))
	}))
	defer srv.Close()

	p := &huggingfaceEmbedProvider{baseURL: srv.URL}
	vec, err := p.Embed(context.Background(), "", "text")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, vec)
}

func TestHuggingFaceEmbedModelAppendedToPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sentence-transformers/all-MiniLM-L6-v2", r.URL.Path)
		_, _ = w.Write([]byte(`[0.5]`))
	}))
	defer srv.Close()

	p := &huggingfaceEmbedProvider{baseURL: srv.URL}
	_, err := p.Embed(context.Background(), "sentence-transformers/all-MiniLM-L6-v2", "text")
	require.NoError(t, err)
}

func TestHuggingFaceEmbedNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`model loading`))
	}))
	defer srv.Close()

	p := &huggingfaceEmbedProvider{baseURL: srv.URL}
	_, err := p.Embed(context.Background(), "", "text")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestHuggingFaceEmbedGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected": true}`))
	}))
	defer srv.Close()

	p := &huggingfaceEmbedProvider{baseURL: srv.URL}
	_, err := p.Embed(context.Background(), "", "text")
	require.ErrorIs(t, err, ErrBadResponse)
}
