// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package fleetlock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverReturning(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.Header.Get(protocolHeader))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestPreReboot_SuccessReturnsTrue(t *testing.T) {
	srv := serverReturning(t, 200, "")
	defer srv.Close()

	c, err := NewClient(srv.URL, ClientParameters{ID: "node-1", Group: "workers"}, nil)
	require.NoError(t, err)

	ok, gotErr := c.PreReboot(context.Background())
	assert.Nil(t, gotErr)
	assert.True(t, ok)
}

func TestPreReboot_RemoteRejectionDisplay(t *testing.T) {
	srv := serverReturning(t, 466, `{"kind":"failure_foo","value":"failed to perform foo"}`)
	defer srv.Close()

	c, err := NewClient(srv.URL, ClientParameters{ID: "node-1", Group: "workers"}, nil)
	require.NoError(t, err)

	ok, gotErr := c.PreReboot(context.Background())
	assert.False(t, ok)
	require.NotNil(t, gotErr)
	assert.Equal(t, "server-side error, code 466: failed to perform foo", gotErr.Error())
}

func TestSteadyState_GenericHTTPErrorDisplay(t *testing.T) {
	srv := serverReturning(t, 433, "")
	defer srv.Close()

	c, err := NewClient(srv.URL, ClientParameters{ID: "node-1", Group: "workers"}, nil)
	require.NoError(t, err)

	ok, gotErr := c.SteadyState(context.Background())
	assert.False(t, ok)
	require.NotNil(t, gotErr)
	assert.Equal(t, "server-side error, code 433: (unknown/generic server error)", gotErr.Error())
}

func TestNewClient_RejectsEmptyGroup(t *testing.T) {
	_, err := NewClient("http://127.0.0.1", ClientParameters{ID: "node-1"}, nil)
	assert.Error(t, err)
}
