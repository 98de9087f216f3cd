// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 LabRouter Authors

// Package api provides the JSON response helpers shared by every handler.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Reason codes are stable across versions; clients may branch on them.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonRateLimited     = "rate_limited"

	ReasonMissingField = "missing_field"
	ReasonInvalidBody  = "invalid_body"
	ReasonInvalidParam = "invalid_param"
	ReasonNotFound     = "not_found"
	ReasonNoMatch      = "no_matching_lab"

	ReasonUpstreamError = "upstream_error"
	ReasonInternalError = "internal_error"
)

// ErrorBody is the error response format. Detail is what the form displays.
type ErrorBody struct {
	Detail     string `json:"detail"`
	ReasonCode string `json:"reason_code"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, reasonCode, detail string) {
	WriteJSON(w, status, ErrorBody{Detail: detail, ReasonCode: reasonCode})
}

// WriteUnauthorized writes a 401 with a WWW-Authenticate challenge.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="labrouter"`)
	WriteError(w, http.StatusUnauthorized, ReasonUnauthenticated, detail)
}

// WriteNotFound writes a 404.
func WriteNotFound(w http.ResponseWriter, reasonCode, detail string) {
	WriteError(w, http.StatusNotFound, reasonCode, detail)
}

// WriteUnprocessable writes a 422 for requests that parse but do not validate.
func WriteUnprocessable(w http.ResponseWriter, reasonCode, detail string) {
	WriteError(w, http.StatusUnprocessableEntity, reasonCode, detail)
}

// WriteBadGateway writes a 502 for upstream failures.
func WriteBadGateway(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadGateway, ReasonUpstreamError, detail)
}

// WriteTooManyRequests writes a 429 with Retry-After rounded up to whole seconds, minimum 1.
func WriteTooManyRequests(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, "Too many requests")
}

// WriteInternalError writes a 500. Keep internals out of detail.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, ReasonInternalError, "Internal server error")
}
