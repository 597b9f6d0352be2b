// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package cincinnati implements the update-graph client: a narrow HTTP
// client fetching a directed graph of releases from a Cincinnati-style
// graph service, grounded on the reference agent's cincinnati/client.rs
// (Client/ClientBuilder/CincinnatiError) but adapted to Go's
// net/http and a synchronous, context-scoped call.
package cincinnati

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout is the default HTTP request completion timeout (30
// minutes, overridable via ClientOption).
const DefaultTimeout = 30 * time.Minute

const v1GraphPath = "v1/graph"

// Node is the wire representation of a graph node.
type Node struct {
	Version  string            `json:"version"`
	Payload  string            `json:"payload"`
	Metadata map[string]string `json:"metadata"`
}

// Edge is an unordered (src, dst) pair of node indices.
type Edge [2]uint64

// Graph is the wire representation of the update graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// JSONError is the optional {kind,value} body a non-2xx response may
// carry, round-tripping field-for-field through decode and encode.
type JSONError struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// ErrorKind enumerates the client-side error discriminants; a
// server-reported kind (from JSONError.Kind) is carried verbatim.
type ErrorKind string

const (
	KindRemote         ErrorKind = "" // carries the server's own kind verbatim
	KindHTTP           ErrorKind = "generic_http"
	KindFailedRequest  ErrorKind = "client_failed_request"
	KindFailedDecoding ErrorKind = "client_failed_json_decoding"
)

// Error is the typed error taxonomy of §4.1.
type Error struct {
	// StatusCode is the HTTP status, when the error originated from a
	// response (Remote and Http variants); zero otherwise.
	StatusCode int
	// Kind is the machine-friendly discriminant: the server's own kind
	// for a Remote error, "generic_http_<code>" for a bare non-2xx
	// status, or one of the client_* constants.
	Kind string
	// Value is the human-friendly explanation.
	Value string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("server-side error, code %d: %s", e.StatusCode, e.Value)
	}
	return fmt.Sprintf("client-side error: %s", e.Value)
}

func remoteErr(status int, body JSONError) *Error {
	return &Error{StatusCode: status, Kind: body.Kind, Value: body.Value}
}

func httpErr(status int) *Error {
	return &Error{StatusCode: status, Kind: fmt.Sprintf("generic_http_%d", status), Value: "(unknown/generic server error)"}
}

func requestErr(msg string) *Error {
	return &Error{Kind: string(KindFailedRequest), Value: msg}
}

func decodingErr(msg string) *Error {
	return &Error{Kind: string(KindFailedDecoding), Value: msg}
}

// Client fetches an update graph from a Cincinnati-protocol graph
// service.
type Client struct {
	apiBase     *url.URL
	httpClient  *http.Client
	queryParams map[string]string
}

// ClientOption configures a Client at construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the default timeout-bound http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithQueryParams sets the identity/group query parameters appended to
// every request.
func WithQueryParams(params map[string]string) ClientOption {
	return func(c *Client) { c.queryParams = params }
}

// NewClient builds a Client for the given base API URL.
func NewClient(apiBase string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(apiBase)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", apiBase, err)
	}
	c := &Client{
		apiBase:    parsed,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchGraph fetches and decodes the update graph.
func (c *Client) FetchGraph(ctx context.Context) (*Graph, *Error) {
	reqURL, err := c.apiBase.Parse(v1GraphPath)
	if err != nil {
		return nil, requestErr(err.Error())
	}
	q := reqURL.Query()
	for k, v := range c.queryParams {
		q.Set(k, v)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, requestErr(err.Error())
	}
	req.Header.Set("accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, requestErr(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var graph Graph
		if err := json.NewDecoder(resp.Body).Decode(&graph); err != nil {
			return nil, decodingErr(fmt.Sprintf("failed to decode graph: %v", err))
		}
		return &graph, nil
	}

	var jsonErr JSONError
	if err := json.NewDecoder(resp.Body).Decode(&jsonErr); err == nil && jsonErr.Kind != "" {
		return nil, remoteErr(resp.StatusCode, jsonErr)
	}
	return nil, httpErr(resp.StatusCode)
}
