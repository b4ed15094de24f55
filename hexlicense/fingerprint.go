package hexlicense

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// FingerprintEnv overrides the derived fingerprint when set and non-empty.
// The value is used as is. Useful for containers whose hostname and
// interfaces change on every start.
const FingerprintEnv = "HEXLICENSE_FINGERPRINT"

// HardwareIdentity derives a stable fingerprint for the current machine.
type HardwareIdentity struct {
	provider HardwareProvider
	logger   *slog.Logger

	// host attribute sources, replaceable in tests
	hostname func() (string, error)
	release  func() (string, bool)
	cpu      func() string
}

// IdentityOption configures a HardwareIdentity.
type IdentityOption func(*HardwareIdentity)

// WithHardwareProvider replaces the capability-selected provider.
func WithHardwareProvider(p HardwareProvider) IdentityOption {
	return func(h *HardwareIdentity) {
		h.provider = p
	}
}

// WithCommandRunner sets the runner used by the OS-command provider.
// It has no effect when native network info is available.
func WithCommandRunner(run CommandRunner) IdentityOption {
	return func(h *HardwareIdentity) {
		if _, ok := h.provider.(commandProvider); ok {
			h.provider = commandProvider{goos: runtime.GOOS, run: run}
		}
	}
}

// WithIdentityLogger sets the logger used for field collection diagnostics.
func WithIdentityLogger(l *slog.Logger) IdentityOption {
	return func(h *HardwareIdentity) {
		h.logger = l
	}
}

// NewHardwareIdentity selects a hardware provider from caps. The choice is
// fixed for the lifetime of the identity.
func NewHardwareIdentity(caps Capabilities, opts ...IdentityOption) *HardwareIdentity {
	h := &HardwareIdentity{
		provider: newHardwareProvider(caps, nil),
		logger:   slog.Default(),
		hostname: os.Hostname,
		release:  osRelease,
		cpu:      cpuDescriptor,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Fingerprint returns the lowercase hex SHA-256 of
// hostname|os|release|cpu|cpucount|macs|memory. Fields that cannot be read
// are skipped, never replaced by a placeholder, so the call always succeeds.
//
// A non-empty FingerprintEnv is returned verbatim instead, without hashing,
// so an operator can pin the hwid the authority already knows.
func (h *HardwareIdentity) Fingerprint() string {
	if fp := os.Getenv(FingerprintEnv); fp != "" {
		return fp
	}

	var parts []string
	add := func(name, v string) {
		if v == "" {
			h.logger.Debug("fingerprint field unavailable", slog.String("field", name))
			return
		}
		parts = append(parts, v)
	}

	host, err := h.hostname()
	if err != nil {
		host = ""
	}
	add("hostname", host)
	add("os", runtime.GOOS)
	rel, _ := h.release()
	add("release", rel)
	add("cpu", h.cpu())
	add("cpu_count", strconv.Itoa(runtime.NumCPU()))

	if macs, err := h.provider.MACAddresses(); err == nil {
		add("macs", strings.Join(macs, ","))
	} else {
		h.logger.Debug("mac enumeration failed", slog.String("error", err.Error()))
	}
	if mem, ok := h.provider.TotalMemory(); ok && mem > 0 {
		add("memory", strconv.FormatUint(mem, 10))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// GenerateFingerprint derives the fingerprint with detected capabilities.
func GenerateFingerprint() string {
	return NewHardwareIdentity(DetectCapabilities()).Fingerprint()
}

// cpuDescriptor returns a processor model string, falling back to GOARCH.
func cpuDescriptor() string {
	switch runtime.GOOS {
	case "linux":
		if raw, err := os.ReadFile("/proc/cpuinfo"); err == nil {
			if model := cpuinfoModel(raw); model != "" {
				return model
			}
		}
	case "windows":
		if id := os.Getenv("PROCESSOR_IDENTIFIER"); id != "" {
			return id
		}
	}
	return runtime.GOARCH
}

func cpuinfoModel(raw []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "model name", "Model", "cpu model":
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func machineInfo() MachineInfo {
	host, _ := os.Hostname()
	rel, _ := osRelease()
	return MachineInfo{
		OS:       runtime.GOOS,
		Version:  rel,
		Arch:     runtime.GOARCH,
		Hostname: host,
	}
}
