package hexlicense

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexrift/hexlicense-sdk/hexlicense/journal"
)

const testFingerprint = "test-machine-fingerprint"

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type stubVerifier struct {
	resp  *VerifyResponse
	err   error
	calls atomic.Int32
}

func (s *stubVerifier) Verify(_ context.Context, _ VerifyRequest) (*VerifyResponse, error) {
	s.calls.Add(1)
	return s.resp, s.err
}

func unreachable() *stubVerifier {
	return &stubVerifier{err: networkError("http request", errors.New("connection refused"))}
}

func testConfig(t *testing.T, apiURL string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIURL = apiURL
	cfg.LicenseKey = "ABCD-1234-EFGH-5678"
	cfg.CacheDir = filepath.Join(t.TempDir(), ".hexlicense")
	cfg.Capabilities = &Capabilities{HasNetInfo: true, HasCrypto: true}
	return cfg
}

func newTestManager(t *testing.T, cfg Config, opts ...ManagerOption) *Manager {
	t.Helper()
	t.Setenv(FingerprintEnv, testFingerprint)
	base := []ManagerOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return testNow }),
	}
	m, err := NewManager(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func seedCache(t *testing.T, cfg Config, record *LicenseRecord) {
	t.Helper()
	cache := NewOfflineCache(cfg.CacheDir, *cfg.Capabilities)
	require.NoError(t, cache.Save(record, DeriveKey(testFingerprint)))
}

func TestManager_Validate_OnlineValid(t *testing.T) {
	expires := testNow.Add(30 * 24 * time.Hour)
	var got VerifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Contains(t, r.Header.Get("User-Agent"), "HexLicense-GoClient/")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"valid":     true,
			"expiresAt": expires.Format(time.RFC3339),
			"features":  []string{"premium"},
			"owner":     "Acme",
		})
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL)
	m := newTestManager(t, cfg)

	out := m.Validate(context.Background())
	require.Equal(t, OutcomeOnlineValid, out.Kind)
	assert.NoError(t, out.Err)
	assert.True(t, out.Valid())
	assert.True(t, m.IsValid())
	assert.False(t, m.IsOfflineMode())
	assert.True(t, m.HasFeature("premium"))
	assert.False(t, m.HasFeature("enterprise"))

	assert.Equal(t, cfg.LicenseKey, got.LicenseKey)
	assert.Equal(t, testFingerprint, got.Fingerprint)
	assert.Equal(t, DefaultProductID, got.Product)
	assert.Equal(t, DefaultVersion, got.Version)
	assert.NotEmpty(t, got.Machine.OS)
	assert.NotEmpty(t, got.Machine.Arch)

	record := m.Record()
	require.NotNil(t, record)
	assert.Equal(t, "Acme", record.Owner)
	assert.True(t, record.ValidatedAt.Equal(testNow))
	require.NotNil(t, record.ExpiresAt)
	assert.True(t, record.ExpiresAt.Equal(expires))

	info, err := os.Stat(m.CachePath())
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestManager_Validate_ServerRejected(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	seedCache(t, cfg, &LicenseRecord{Valid: true, Owner: "Old", ValidatedAt: testNow.Add(-time.Hour)})
	before, err := os.ReadFile(filepath.Join(cfg.CacheDir, CacheFileName))
	require.NoError(t, err)

	v := &stubVerifier{resp: &VerifyResponse{Valid: false, Error: "License key revoked"}}
	m := newTestManager(t, cfg, WithVerifier(v))

	out := m.Validate(context.Background())
	require.Equal(t, OutcomeOnlineInvalid, out.Kind)
	assert.True(t, errors.Is(out.Err, ErrServerRejected))
	assert.EqualError(t, out.Err, "License key revoked")
	assert.False(t, m.IsValid())
	assert.False(t, m.IsOfflineMode())
	assert.False(t, m.HasFeature("premium"))
	assert.Equal(t, "License key revoked", m.Record().Error)

	// Explicit rejection is authoritative: the stale cache is neither used nor touched.
	after, err := os.ReadFile(filepath.Join(cfg.CacheDir, CacheFileName))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestManager_Validate_MissingLicenseKey(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	cfg.LicenseKey = ""
	v := unreachable()
	m := newTestManager(t, cfg, WithVerifier(v))

	out := m.Validate(context.Background())
	assert.Equal(t, OutcomeOnlineInvalid, out.Kind)
	assert.ErrorIs(t, out.Err, ErrMissingLicenseKey)
	assert.Zero(t, v.calls.Load(), "no network attempt without a key")
	assert.False(t, m.IsValid())
}

func TestManager_Validate_OfflineValid(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	seedCache(t, cfg, &LicenseRecord{
		Valid:       true,
		Features:    []string{"premium"},
		Owner:       "Acme",
		ValidatedAt: testNow.Add(-3 * 24 * time.Hour),
	})
	m := newTestManager(t, cfg, WithVerifier(unreachable()))

	out := m.Validate(context.Background())
	require.Equal(t, OutcomeOfflineValid, out.Kind)
	assert.ErrorIs(t, out.Err, ErrNetwork)
	assert.True(t, m.IsValid())
	assert.True(t, m.IsOfflineMode())
	assert.True(t, m.HasFeature("premium"))
	assert.True(t, m.Record().OfflineMode)
}

func TestManager_Validate_OfflineAgainstClosedServer(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := testConfig(t, url)
	seedCache(t, cfg, &LicenseRecord{Valid: true, Owner: "Acme", ValidatedAt: testNow.Add(-24 * time.Hour)})
	m := newTestManager(t, cfg)

	out := m.Validate(context.Background())
	assert.Equal(t, OutcomeOfflineValid, out.Kind)
	assert.True(t, m.IsOfflineMode())
}

func TestManager_Validate_NullBodyFallsBackOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`null`))
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL)
	seedCache(t, cfg, &LicenseRecord{Valid: true, Owner: "Acme", ValidatedAt: testNow.Add(-time.Hour)})
	m := newTestManager(t, cfg)

	out := m.Validate(context.Background())
	require.Equal(t, OutcomeOfflineValid, out.Kind)
	assert.ErrorIs(t, out.Err, ErrNetwork)
	assert.True(t, m.IsOfflineMode())
	assert.Equal(t, "Acme", m.Record().Owner)
}

func TestManager_Validate_NilVerifierResponse(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	seedCache(t, cfg, &LicenseRecord{Valid: true, ValidatedAt: testNow.Add(-time.Hour)})
	v := &stubVerifier{}
	m := newTestManager(t, cfg, WithVerifier(v))

	var out Outcome
	require.NotPanics(t, func() { out = m.Validate(context.Background()) })
	assert.Equal(t, OutcomeOfflineValid, out.Kind)
	assert.ErrorIs(t, out.Err, ErrNetwork)
	assert.EqualValues(t, 1, v.calls.Load())
}

func TestManager_Validate_OfflineNoCache(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	m := newTestManager(t, cfg, WithVerifier(unreachable()))

	out := m.Validate(context.Background())
	require.Equal(t, OutcomeOfflineRejected, out.Kind)
	assert.Equal(t, ReasonNoCache, out.Reason)
	assert.ErrorIs(t, out.Err, ErrNetwork)
	assert.ErrorIs(t, out.Err, ErrCacheMissing)
	assert.False(t, m.IsValid())
	assert.False(t, m.IsOfflineMode())
}

func TestManager_Validate_OfflineCacheCorrupt(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	require.NoError(t, os.MkdirAll(cfg.CacheDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CacheDir, CacheFileName), []byte("not-a-cache"), 0o600))
	m := newTestManager(t, cfg, WithVerifier(unreachable()))

	out := m.Validate(context.Background())
	assert.Equal(t, OutcomeOfflineRejected, out.Kind)
	assert.Equal(t, ReasonCacheCorrupt, out.Reason)
}

func TestManager_Validate_CacheFromOtherMachine(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	cache := NewOfflineCache(cfg.CacheDir, *cfg.Capabilities)
	require.NoError(t, cache.Save(&LicenseRecord{Valid: true, ValidatedAt: testNow}, DeriveKey("machine-a")))
	m := newTestManager(t, cfg, WithVerifier(unreachable()))

	out := m.Validate(context.Background())
	assert.Equal(t, OutcomeOfflineRejected, out.Kind)
	assert.Equal(t, ReasonCacheCorrupt, out.Reason)
	assert.False(t, m.IsValid())
}

func TestManager_Validate_GracePeriodBoundary(t *testing.T) {
	tests := []struct {
		name   string
		age    time.Duration
		want   OutcomeKind
		reason RejectReason
	}{
		{"6 days 23 hours", 6*24*time.Hour + 23*time.Hour, OutcomeOfflineValid, ReasonNone},
		{"exactly 7 days", 7 * 24 * time.Hour, OutcomeOfflineValid, ReasonNone},
		{"7 days 1 second", 7*24*time.Hour + time.Second, OutcomeOfflineRejected, ReasonGraceExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://license.invalid")
			seedCache(t, cfg, &LicenseRecord{Valid: true, ValidatedAt: testNow.Add(-tt.age)})
			m := newTestManager(t, cfg, WithVerifier(unreachable()))

			out := m.Validate(context.Background())
			assert.Equal(t, tt.want, out.Kind)
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestManager_Validate_ExpiryOverridesGrace(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	expired := testNow.Add(-time.Minute)
	seedCache(t, cfg, &LicenseRecord{
		Valid:       true,
		ExpiresAt:   &expired,
		ValidatedAt: testNow.Add(-24 * time.Hour),
	})
	m := newTestManager(t, cfg, WithVerifier(unreachable()))

	out := m.Validate(context.Background())
	assert.Equal(t, OutcomeOfflineRejected, out.Kind)
	assert.Equal(t, ReasonLicenseExpired, out.Reason)
	assert.ErrorIs(t, out.Err, ErrLicenseExpired)
}

func TestManager_Validate_CryptoUnavailable(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	seedCache(t, cfg, &LicenseRecord{Valid: true, ValidatedAt: testNow})
	cfg.Capabilities = &Capabilities{HasNetInfo: true, HasCrypto: false}

	online := &stubVerifier{resp: &VerifyResponse{Valid: true, Owner: "Acme", Features: []string{}}}
	m := newTestManager(t, cfg, WithVerifier(online))
	require.NoError(t, m.ClearCache())

	out := m.Validate(context.Background())
	assert.Equal(t, OutcomeOnlineValid, out.Kind)
	_, err := os.Stat(m.CachePath())
	assert.True(t, errors.Is(err, os.ErrNotExist), "cache must not be written without crypto")

	// A readable cache on disk is still ignored when crypto is unavailable.
	withCrypto := NewOfflineCache(cfg.CacheDir, Capabilities{HasCrypto: true})
	require.NoError(t, withCrypto.Save(&LicenseRecord{Valid: true, ValidatedAt: testNow}, DeriveKey(testFingerprint)))

	m2 := newTestManager(t, cfg, WithVerifier(unreachable()))
	out = m2.Validate(context.Background())
	assert.Equal(t, OutcomeOfflineRejected, out.Kind)
	assert.Equal(t, ReasonNoCache, out.Reason)
}

func TestManager_Validate_ReplacesRecordEachCall(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	v := &stubVerifier{resp: &VerifyResponse{Valid: true, Owner: "Acme", Features: []string{"premium"}}}
	m := newTestManager(t, cfg, WithVerifier(v))

	require.Equal(t, OutcomeOnlineValid, m.Validate(context.Background()).Kind)
	assert.True(t, m.HasFeature("premium"))

	v.resp = &VerifyResponse{Valid: false, Error: "suspended"}
	require.Equal(t, OutcomeOnlineInvalid, m.Validate(context.Background()).Kind)
	assert.False(t, m.IsValid())
	assert.False(t, m.HasFeature("premium"))
}

func TestManager_QueriesBeforeValidate(t *testing.T) {
	m := newTestManager(t, testConfig(t, "http://license.invalid"))
	assert.False(t, m.IsValid())
	assert.False(t, m.IsOfflineMode())
	assert.False(t, m.HasFeature("premium"))
	assert.Nil(t, m.Record())
}

func TestManager_Record_IsCopy(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	v := &stubVerifier{resp: &VerifyResponse{Valid: true, Owner: "Acme", Features: []string{"premium"}}}
	m := newTestManager(t, cfg, WithVerifier(v))
	m.Validate(context.Background())

	r := m.Record()
	r.Features[0] = "tampered"
	r.Valid = false
	assert.True(t, m.HasFeature("premium"))
	assert.True(t, m.IsValid())
}

func TestManager_Validate_Journal(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	j := journal.NewMemoryJournal()
	m := newTestManager(t, cfg, WithVerifier(unreachable()), WithJournal(j))

	m.Validate(context.Background())

	e, err := j.Latest(context.Background(), testFingerprint)
	require.NoError(t, err)
	assert.Equal(t, "offline_rejected", e.Outcome)
	assert.Equal(t, "no_cache", e.Reason)
	assert.Equal(t, journal.HashLicenseKey(cfg.LicenseKey), e.LicenseKeyHash)
	assert.NotContains(t, e.LicenseKeyHash, cfg.LicenseKey)
	assert.Equal(t, DefaultProductID, e.Product)
	assert.True(t, e.RecordedAt.Equal(testNow))
}

func TestManager_Validate_Metrics(t *testing.T) {
	cfg := testConfig(t, "http://license.invalid")
	expires := testNow.Add(10*24*time.Hour + time.Hour)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	v := &stubVerifier{resp: &VerifyResponse{Valid: true, Owner: "Acme", ExpiresAt: &expires}}
	m := newTestManager(t, cfg, WithVerifier(v), WithMetrics(metrics))

	m.Validate(context.Background())
	m.Validate(context.Background())

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Validations.WithLabelValues("online_valid", "none")))
	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.DaysRemaining))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.VerifyDuration))
}

func TestNewManager_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "not a url")
	_, err := NewManager(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAcceptCached(t *testing.T) {
	future := testNow.Add(time.Hour)
	past := testNow.Add(-time.Hour)
	tests := []struct {
		name   string
		record LicenseRecord
		want   error
	}{
		{"fresh without expiry", LicenseRecord{Valid: true, ValidatedAt: testNow}, nil},
		{"fresh with future expiry", LicenseRecord{Valid: true, ValidatedAt: testNow, ExpiresAt: &future}, nil},
		{"expiry exactly now", LicenseRecord{Valid: true, ValidatedAt: testNow, ExpiresAt: &testNow}, nil},
		{"expired", LicenseRecord{Valid: true, ValidatedAt: testNow, ExpiresAt: &past}, ErrLicenseExpired},
		{"stale", LicenseRecord{Valid: true, ValidatedAt: testNow.Add(-8 * 24 * time.Hour)}, ErrGraceExpired},
		{"not valid", LicenseRecord{Valid: false, ValidatedAt: testNow}, ErrCacheCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := acceptCached(&tt.record, testNow)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
