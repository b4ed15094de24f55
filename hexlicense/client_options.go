package hexlicense

import (
	"net/http"
	"time"
)

// VerifierOption configures a RemoteVerifier.
type VerifierOption func(*RemoteVerifier)

// WithHTTPClient routes verify requests through c, for proxies or custom TLS.
// NewRemoteVerifier sets c.Timeout to the verify timeout, so a client shared
// with other code gets that timeout too.
func WithHTTPClient(c *http.Client) VerifierOption {
	return func(v *RemoteVerifier) {
		v.httpClient = c
	}
}

// WithTimeout bounds the whole verify round trip, DefaultTimeout if unset.
// A timeout counts as unreachable and sends the Manager to the offline cache.
func WithTimeout(d time.Duration) VerifierOption {
	return func(v *RemoteVerifier) {
		v.timeout = d
	}
}

// WithUserAgent replaces the HexLicense-GoClient/<version> User-Agent.
func WithUserAgent(ua string) VerifierOption {
	return func(v *RemoteVerifier) {
		v.userAgent = ua
	}
}
