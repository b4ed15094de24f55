// Package hexlicense provides a Go client library for the Hex License authority.
//
// Install with:
//
//	go get github.com/hexrift/hexlicense-sdk/hexlicense
//
// A Manager validates a license key against the authority and, when the
// authority cannot be reached, falls back to the last known-good verdict
// stored in an encrypted cache bound to the current machine:
//
//   - Online validation via POST {apiUrl}/verify
//   - Offline validation from <cacheDir>/license.cache for up to 7 days
//     after the last successful online check
//
// # Quick Start
//
//	cfg := hexlicense.DefaultConfig()
//	cfg.LicenseKey = "XXXX-YYYY-ZZZZ"
//	m, err := hexlicense.NewManager(cfg)
//	if err != nil {
//	    return err
//	}
//	out := m.Validate(ctx)
//	if !out.Valid() {
//	    return out.Err
//	}
//	if m.HasFeature("premium") {
//	    // ...
//	}
//
// # Offline cache
//
// The cache file holds "<ivHex>:<cipherHex>", AES-256-CBC with a key derived
// from the machine fingerprint. A cache copied to another machine cannot be
// decrypted there. The cache protects against casual copying and editing, not
// against a privileged local attacker.
//
// # Observability
//
// WithMetrics reports outcomes to Prometheus collectors, and WithJournal
// records every outcome in a journal.Journal (PostgreSQL, MongoDB or memory).
package hexlicense
