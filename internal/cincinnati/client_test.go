// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package cincinnati

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverReturning(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("accept"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestFetchGraph_ServerSideErrorDisplay(t *testing.T) {
	srv := serverReturning(t, 466, `{"kind":"failure_foo","value":"failed to perform foo"}`)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, gotErr := c.FetchGraph(context.Background())
	require.NotNil(t, gotErr)
	assert.Equal(t, "failure_foo", gotErr.Kind)
	assert.Equal(t, "server-side error, code 466: failed to perform foo", gotErr.Error())
}

func TestFetchGraph_GenericHTTPErrorDisplay(t *testing.T) {
	srv := serverReturning(t, 433, "")
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, gotErr := c.FetchGraph(context.Background())
	require.NotNil(t, gotErr)
	assert.Equal(t, "server-side error, code 433: (unknown/generic server error)", gotErr.Error())
}

func TestFetchGraph_DecodingErrorOnSuccessStatus(t *testing.T) {
	srv := serverReturning(t, 200, `{"nodes": not-valid-json`)
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, gotErr := c.FetchGraph(context.Background())
	require.NotNil(t, gotErr)
	assert.Equal(t, 0, gotErr.StatusCode)
	assert.Contains(t, gotErr.Error(), "client-side error:")
}

func TestFetchGraph_Success(t *testing.T) {
	graph := Graph{
		Nodes: []Node{
			{Version: "1.0.0", Payload: "sha-a", Metadata: map[string]string{"age_index": "0", "scheme": "checksum"}},
			{Version: "2.0.0", Payload: "sha-b", Metadata: map[string]string{"age_index": "1", "scheme": "checksum"}},
		},
		Edges: []Edge{{0, 1}},
	}
	body, err := json.Marshal(graph)
	require.NoError(t, err)

	srv := serverReturning(t, 200, string(body))
	defer srv.Close()

	c, cerr := NewClient(srv.URL)
	require.NoError(t, cerr)

	got, gotErr := c.FetchGraph(context.Background())
	require.Nil(t, gotErr)
	assert.Equal(t, graph, *got)
}

func TestJSONError_RoundTrips(t *testing.T) {
	orig := JSONError{Kind: "failure_foo", Value: "failed to perform foo"}
	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded JSONError
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig, decoded)
}
