// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package fleetlock implements a client for FleetLock, a bare HTTP
// protocol for coordinating cluster-wide reboots via a remote
// semaphore manager. Grounded on the reference agent's
// fleet_lock::Client/ClientBuilder (fleet_lock/mod.rs), structurally
// mirroring internal/cincinnati's Client/Error shape since both speak
// the same "POST with a protocol header, 2xx or {kind,value}" idiom.
package fleetlock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const (
	v1PreReboot   = "v1/pre-reboot"
	v1SteadyState = "v1/steady-state"

	protocolHeader = "fleet-lock-protocol"
)

// ClientParameters identifies the requesting node in every request
// body.
type ClientParameters struct {
	ID    string `json:"id"`
	Group string `json:"group"`
}

type requestBody struct {
	ClientParams ClientParameters `json:"client_params"`
}

// JSONError is the optional {kind,value} body a non-2xx response may
// carry.
type JSONError struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Error is the FleetLock client-side error taxonomy, mirroring
// internal/cincinnati.Error's Display convention.
type Error struct {
	StatusCode int
	Kind       string
	Value      string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("server-side error, code %d: %s", e.StatusCode, e.Value)
	}
	return fmt.Sprintf("client-side error: %s", e.Value)
}

// Client talks to a FleetLock remote semaphore manager.
type Client struct {
	apiBase    *url.URL
	httpClient *http.Client
	params     ClientParameters
}

// NewClient builds a Client for apiBase, identifying itself with
// params in every request body. group must be non-empty, matching the
// reference agent's ClientBuilder validation.
func NewClient(apiBase string, params ClientParameters, httpClient *http.Client) (*Client, error) {
	if params.Group == "" {
		return nil, fmt.Errorf("missing group value")
	}
	parsed, err := url.Parse(apiBase)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", apiBase, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{apiBase: parsed, httpClient: httpClient, params: params}, nil
}

// PreReboot attempts to lock a semaphore slot, returning true on
// success.
func (c *Client) PreReboot(ctx context.Context) (bool, *Error) {
	return c.do(ctx, v1PreReboot)
}

// SteadyState attempts to unlock a semaphore slot, returning true on
// success.
func (c *Client) SteadyState(ctx context.Context) (bool, *Error) {
	return c.do(ctx, v1SteadyState)
}

func (c *Client) do(ctx context.Context, urlSuffix string) (bool, *Error) {
	reqURL, err := c.apiBase.Parse(urlSuffix)
	if err != nil {
		return false, &Error{Kind: "client_failed_request", Value: err.Error()}
	}
	body, err := json.Marshal(requestBody{ClientParams: c.params})
	if err != nil {
		return false, &Error{Kind: "client_failed_request", Value: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return false, &Error{Kind: "client_failed_request", Value: err.Error()}
	}
	req.Header.Set(protocolHeader, "true")
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &Error{Kind: "client_failed_request", Value: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, nil
	}

	var jsonErr JSONError
	if err := json.NewDecoder(resp.Body).Decode(&jsonErr); err == nil && jsonErr.Kind != "" {
		return false, &Error{StatusCode: resp.StatusCode, Kind: jsonErr.Kind, Value: jsonErr.Value}
	}
	return false, &Error{
		StatusCode: resp.StatusCode,
		Kind:       fmt.Sprintf("generic_http_%d", resp.StatusCode),
		Value:      "(unknown/generic server error)",
	}
}
