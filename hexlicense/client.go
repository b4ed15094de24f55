package hexlicense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one verify round trip.
	DefaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB

	defaultOwner       = "Unknown"
	defaultRejectError = "License validation failed"
)

var errNullResponse = errors.New("response body is null")

// RemoteVerifier performs the /verify round trip against the license authority.
type RemoteVerifier struct {
	apiURL     string
	httpClient *http.Client
	timeout    time.Duration // applied after all options
	userAgent  string
}

// NewRemoteVerifier creates a verifier for the authority at apiURL
// (e.g. "https://api.hexrift.net/api").
func NewRemoteVerifier(apiURL string, opts ...VerifierOption) *RemoteVerifier {
	v := &RemoteVerifier{
		apiURL:    strings.TrimRight(apiURL, "/"),
		timeout:   DefaultTimeout,
		userAgent: "HexLicense-GoClient/1.0",
	}
	for _, opt := range opts {
		opt(v)
	}
	// Apply timeout after all options so ordering doesn't matter.
	if v.httpClient == nil {
		v.httpClient = &http.Client{}
	}
	v.httpClient.Timeout = v.timeout
	return v
}

// Verify posts req to {apiURL}/verify.
//
// A reachable authority always yields a response, valid or not. Every other
// failure, including a non-2xx status or an undecodable body, is returned as a
// *NetworkError so callers only need errors.Is(err, ErrNetwork).
func (v *RemoteVerifier) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	var wire *verifyResponseWire
	if err := v.doJSON(ctx, "/verify", req, &wire); err != nil {
		return nil, err
	}
	if wire == nil {
		return nil, networkError("decode response", errNullResponse)
	}

	resp := &VerifyResponse{Valid: wire.Valid}
	if !wire.Valid {
		resp.Error = wire.Error
		if resp.Error == "" {
			resp.Error = defaultRejectError
		}
		return resp, nil
	}

	if wire.ExpiresAt != nil && *wire.ExpiresAt != "" {
		t, err := parseTimestamp(*wire.ExpiresAt)
		if err != nil {
			return nil, networkError("decode response", err)
		}
		resp.ExpiresAt = &t
	}
	resp.Features = wire.Features
	if resp.Features == nil {
		resp.Features = []string{}
	}
	resp.Owner = wire.Owner
	if resp.Owner == "" {
		resp.Owner = defaultOwner
	}
	return resp, nil
}

// doJSON performs a POST request with JSON body and decodes the response into dest.
func (v *RemoteVerifier) doJSON(ctx context.Context, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return networkError("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return networkError("http request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return networkError("read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return networkError("http status", parseStatusError(resp.StatusCode, respBody))
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return networkError("decode response", err)
	}
	return nil
}

// parseStatusError accepts {"error": "..."} and {"error": {"code", "message"}}.
func parseStatusError(statusCode int, body []byte) *StatusError {
	se := &StatusError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return se
	}
	var msg string
	if err := json.Unmarshal(envelope.Error, &msg); err == nil {
		se.Message = msg
		return se
	}
	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		se.Code = detail.Code
		se.Message = detail.Message
	}
	return se
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp reads RFC 3339 or naive ISO-8601 values; naive values are UTC.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
