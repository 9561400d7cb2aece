package slogx_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/sessionkit/pkg/idx"
	"github.com/aussiebroadwan/sessionkit/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestTransport_AddsRequestID(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(slogx.RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Level: "debug", Format: "json", Output: &buf})
	client := &http.Client{Transport: slogx.Transport(nil, logger)}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ping", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	_, err = idx.Parse(seen)
	require.NoError(t, err, "request id should be a ULID")
	require.Empty(t, req.Header.Get(slogx.RequestIDHeader), "caller request must not be mutated")
	require.Contains(t, buf.String(), `"msg":"http_client_request"`)
	require.Contains(t, buf.String(), `"status":204`)
}

func TestTransport_KeepsExistingRequestID(t *testing.T) {
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(slogx.RequestIDHeader)
	}))
	defer srv.Close()

	client := &http.Client{Transport: slogx.Transport(nil, slogx.Discard())}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(slogx.RequestIDHeader, "caller-id")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "caller-id", seen)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, "DEBUG", slogx.ParseLevel("debug").String())
	require.Equal(t, "WARN", slogx.ParseLevel("warning").String())
	require.Equal(t, "ERROR", slogx.ParseLevel("ERROR").String())
	require.Equal(t, "INFO", slogx.ParseLevel("bogus").String())
}
