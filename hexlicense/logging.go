package hexlicense

import (
	"context"
	"log/slog"
	"time"
)

// maskKey keeps the first and last four characters of keys longer than eight.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

func shortFingerprint(fp string) string {
	return fp[:min(16, len(fp))]
}

func (m *Manager) logOutcome(ctx context.Context, out Outcome, record *LicenseRecord, d time.Duration) {
	attrs := []slog.Attr{
		slog.String("outcome", out.Kind.String()),
		slog.String("license_key", maskKey(m.cfg.LicenseKey)),
		slog.String("fingerprint", shortFingerprint(m.fingerprint)),
		slog.Duration("duration", d),
	}
	if out.Reason != ReasonNone {
		attrs = append(attrs, slog.String("reason", out.Reason.String()))
	}
	if record != nil && record.Valid {
		attrs = append(attrs, slog.String("owner", record.Owner))
	}
	if out.Err != nil {
		attrs = append(attrs, slog.String("error", out.Err.Error()))
	}

	level := slog.LevelInfo
	if !out.Valid() {
		level = slog.LevelWarn
	}
	m.logger.LogAttrs(ctx, level, "license validation finished", attrs...)
}
