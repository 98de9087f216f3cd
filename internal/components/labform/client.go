// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 LabRouter Authors

package labform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	httpclient "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/client"
)

// Generic failure texts used when the response carries no usable detail.
const (
	MsgNetworkError    = "Network Error"
	MsgInvalidResponse = "Invalid response from server"
)

const maxResponseBytes = 1 << 20

// RequestError is a failed /resolve call. Status is 0 when no response arrived.
type RequestError struct {
	Status int
	Detail json.RawMessage
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve request: %v", e.Err)
	}
	return fmt.Sprintf("resolve request: status %d", e.Status)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Message is the text a view displays. A usable detail wins; otherwise a
// generic description of the status or transport failure.
func (e *RequestError) Message() string {
	if msg, ok := detailText(e.Detail); ok {
		return msg
	}
	switch {
	case e.Status == 0:
		return MsgNetworkError
	case e.Status >= 200 && e.Status <= 299:
		return MsgInvalidResponse
	default:
		return fmt.Sprintf("Request failed with status code %d", e.Status)
	}
}

// detailText renders detail as display text. Absent, null, false, 0 and ""
// count as no detail. Strings are used verbatim; other values as compact JSON.
func detailText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw), true
	}
	return buf.String(), true
}

// ErrorMessage returns the display text for any error from Resolve.
func ErrorMessage(err error) string {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Message()
	}
	return MsgNetworkError
}

// Resolver is what a view submits through.
type Resolver interface {
	Resolve(ctx context.Context, token, prompt string) (*Result, error)
}

// Client posts prompts to <base>/resolve.
type Client struct {
	endpoint string
	http     httpclient.HTTPClient
}

// NewClient targets baseURL, which may carry a path prefix.
func NewClient(baseURL string, h httpclient.HTTPClient) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/resolve",
		http:     h,
	}
}

type resolveRequest struct {
	Prompt string `json:"prompt"`
}

// Resolve sends exactly one request. Token and prompt go out as-is, empty or not.
// Every failure is a *RequestError.
func (c *Client) Resolve(ctx context.Context, token, prompt string) (*Result, error) {
	body, _ := json.Marshal(resolveRequest{Prompt: prompt})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	defer resp.Body.Close()

	data, err := httpclient.ReadLimited(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, &RequestError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var fail struct {
			Detail json.RawMessage `json:"detail"`
		}
		json.Unmarshal(data, &fail)
		return nil, &RequestError{Status: resp.StatusCode, Detail: fail.Detail}
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil || res.InviteURL == "" {
		return nil, &RequestError{Status: resp.StatusCode}
	}
	return &res, nil
}

var _ Resolver = (*Client)(nil)
