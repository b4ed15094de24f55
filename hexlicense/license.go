package hexlicense

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hexrift/hexlicense-sdk/hexlicense/journal"
)

// Verifier obtains a verdict from the license authority.
// *RemoteVerifier is the production implementation.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
}

// Manager is the top-level orchestrator: it validates online, persists good
// verdicts to the offline cache, and falls back to the cache when the
// authority is unreachable.
//
// Validate is not meant to be called concurrently; the query methods are safe
// to call from any goroutine.
type Manager struct {
	cfg      Config
	caps     Capabilities
	identity *HardwareIdentity
	verifier Verifier
	cache    *OfflineCache
	journal  journal.Journal
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time

	fingerprint string
	key         Key

	mu     sync.RWMutex
	record *LicenseRecord
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithVerifier replaces the HTTP verifier built from Config.
func WithVerifier(v Verifier) ManagerOption {
	return func(m *Manager) {
		m.verifier = v
	}
}

// WithIdentity replaces the hardware identity built from the capabilities.
func WithIdentity(h *HardwareIdentity) ManagerOption {
	return func(m *Manager) {
		m.identity = h
	}
}

// WithJournal records every Validate outcome in j.
func WithJournal(j journal.Journal) ManagerOption {
	return func(m *Manager) {
		m.journal = j
	}
}

// WithMetrics reports validations to the given collectors.
func WithMetrics(mt *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithLogger sets the structured logger. Default: slog.Default() tagged
// with component=hexlicense.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock sets the time source used for validatedAt and grace checks.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager validates cfg, resolves capabilities once, and derives the
// machine fingerprint and cache key for the lifetime of the Manager.
func NewManager(cfg Config, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		logger: slog.Default().With("component", "hexlicense"),
		now:    time.Now,
	}
	if cfg.Capabilities != nil {
		m.caps = *cfg.Capabilities
	} else {
		m.caps = DetectCapabilities()
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.identity == nil {
		m.identity = NewHardwareIdentity(m.caps, WithIdentityLogger(m.logger))
	}
	if m.verifier == nil {
		m.verifier = NewRemoteVerifier(cfg.APIURL,
			WithTimeout(cfg.Timeout),
			WithUserAgent(cfg.userAgent()),
		)
	}
	m.cache = NewOfflineCache(cfg.CacheDir, m.caps)

	if !m.caps.HasCrypto {
		m.logger.Warn("cryptography unavailable, offline cache disabled")
	}
	if !m.caps.HasNetInfo {
		m.logger.Warn("native network info unavailable, using OS command fallback for fingerprint")
	}

	m.fingerprint = m.identity.Fingerprint()
	m.key = DeriveKey(m.fingerprint)
	return m, nil
}

// Fingerprint returns the machine fingerprint sent as hwid.
func (m *Manager) Fingerprint() string {
	return m.fingerprint
}

// CachePath returns the location of the offline cache file.
func (m *Manager) CachePath() string {
	return m.cache.Path()
}

// Validate runs the full decision from scratch:
//  1. A missing license key is OnlineInvalid without any I/O
//  2. The authority is asked; a valid verdict is cached and returned as OnlineValid
//  3. An explicit rejection is OnlineInvalid, with no cache write or fallback
//  4. Any network failure falls back to the offline cache, subject to the
//     grace period and the cached expiry
//
// The returned outcome is always definite; the held record is replaced.
func (m *Manager) Validate(ctx context.Context) Outcome {
	start := time.Now()
	out, record := m.validate(ctx)

	m.mu.Lock()
	m.record = record
	m.mu.Unlock()

	now := m.now()
	m.metrics.observeOutcome(out, record, now)
	m.appendJournal(ctx, out, record, now)
	m.logOutcome(ctx, out, record, time.Since(start))
	return out
}

func (m *Manager) validate(ctx context.Context) (Outcome, *LicenseRecord) {
	if m.cfg.LicenseKey == "" {
		return Outcome{Kind: OutcomeOnlineInvalid, Err: ErrMissingLicenseKey},
			invalidRecord(ErrMissingLicenseKey.Error())
	}

	req := VerifyRequest{
		LicenseKey:  m.cfg.LicenseKey,
		Fingerprint: m.fingerprint,
		Product:     m.cfg.ProductID,
		Version:     m.cfg.Version,
		Machine:     machineInfo(),
	}
	start := time.Now()
	resp, err := m.verifier.Verify(ctx, req)
	m.metrics.observeVerify(time.Since(start))
	if err == nil && resp == nil {
		err = errNullResponse
	}
	if err != nil {
		if !errors.Is(err, ErrNetwork) {
			err = networkError("verify", err)
		}
		m.logger.Warn("license authority unreachable, trying offline cache",
			slog.String("error", err.Error()))
		return m.validateOffline(err)
	}

	if !resp.Valid {
		return Outcome{Kind: OutcomeOnlineInvalid, Err: &RejectedError{Message: resp.Error}},
			invalidRecord(resp.Error)
	}

	record := &LicenseRecord{
		Valid:       true,
		ExpiresAt:   resp.ExpiresAt,
		Features:    resp.Features,
		Owner:       resp.Owner,
		ValidatedAt: m.now().UTC(),
	}
	if err := m.cache.Save(record, m.key); err != nil {
		m.logger.Warn("failed to save license cache",
			slog.String("path", m.cache.Path()),
			slog.String("error", err.Error()))
	}
	return Outcome{Kind: OutcomeOnlineValid}, record
}

// validateOffline is the single offline algorithm. netErr stays the dominant
// cause in the returned outcome.
func (m *Manager) validateOffline(netErr error) (Outcome, *LicenseRecord) {
	record, err := m.cache.Load(m.key)
	if err == nil {
		err = acceptCached(record, m.now())
	}
	if err != nil {
		return Outcome{
			Kind:   OutcomeOfflineRejected,
			Reason: reasonFor(err),
			Err:    errors.Join(netErr, err),
		}, invalidRecord(err.Error())
	}

	record.OfflineMode = true
	return Outcome{Kind: OutcomeOfflineValid, Err: netErr}, record
}

// acceptCached requires both now-validatedAt <= OfflineGrace and, when an
// expiry is present, now <= expiresAt.
func acceptCached(record *LicenseRecord, now time.Time) error {
	if !record.Valid {
		return fmt.Errorf("%w: cached record is not valid", ErrCacheCorrupt)
	}
	if now.Sub(record.ValidatedAt) > OfflineGrace {
		return ErrGraceExpired
	}
	if record.ExpiresAt != nil && now.After(*record.ExpiresAt) {
		return ErrLicenseExpired
	}
	return nil
}

func invalidRecord(msg string) *LicenseRecord {
	return &LicenseRecord{Valid: false, Error: msg}
}

// IsValid reports whether the last Validate produced a valid record.
func (m *Manager) IsValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record != nil && m.record.Valid
}

// IsOfflineMode reports whether the last accepted record came from the cache.
func (m *Manager) IsOfflineMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record != nil && m.record.OfflineMode
}

// HasFeature reports whether the last record is valid and grants name.
func (m *Manager) HasFeature(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record.HasFeature(name)
}

// Record returns a copy of the last record, or nil before the first Validate.
func (m *Manager) Record() *LicenseRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record.clone()
}

// ClearCache removes the offline cache file.
func (m *Manager) ClearCache() error {
	return m.cache.Clear()
}

func (m *Manager) appendJournal(ctx context.Context, out Outcome, record *LicenseRecord, now time.Time) {
	if m.journal == nil {
		return
	}
	e := journal.Entry{
		Fingerprint: m.fingerprint,
		Product:     m.cfg.ProductID,
		Outcome:     out.Kind.String(),
		Reason:      out.Reason.String(),
		RecordedAt:  now.UTC(),
	}
	if m.cfg.LicenseKey != "" {
		e.LicenseKeyHash = journal.HashLicenseKey(m.cfg.LicenseKey)
	}
	if record != nil {
		e.Owner = record.Owner
		e.ExpiresAt = record.ExpiresAt
		e.OfflineMode = record.OfflineMode
	}
	if err := m.journal.Append(ctx, e); err != nil {
		m.logger.Warn("failed to journal validation", slog.String("error", err.Error()))
	}
}
