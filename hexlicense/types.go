package hexlicense

import (
	"slices"
	"time"
)

// VerifyRequest is the request body for the /verify endpoint.
type VerifyRequest struct {
	LicenseKey  string      `json:"key"`
	Fingerprint string      `json:"hwid"`
	Product     string      `json:"product"`
	Version     string      `json:"version"`
	Machine     MachineInfo `json:"machine"`
}

// MachineInfo describes the host sending a verify request.
type MachineInfo struct {
	OS       string `json:"os"`
	Version  string `json:"version"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
}

// VerifyResponse is the decoded answer of the /verify endpoint.
// ExpiresAt is nil when the license never expires.
type VerifyResponse struct {
	Valid     bool
	ExpiresAt *time.Time
	Features  []string
	Owner     string
	Error     string
}

// verifyResponseWire matches the JSON the authority sends. expiresAt is kept as
// a string because the authority emits both RFC 3339 and naive ISO-8601 values.
type verifyResponseWire struct {
	Valid     bool     `json:"valid"`
	ExpiresAt *string  `json:"expiresAt"`
	Features  []string `json:"features"`
	Owner     string   `json:"owner"`
	Error     string   `json:"error"`
}

// LicenseRecord is the current license state held by a Manager and persisted
// to the offline cache.
type LicenseRecord struct {
	Valid       bool       `json:"valid"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	Features    []string   `json:"features"`
	Owner       string     `json:"owner"`
	ValidatedAt time.Time  `json:"validatedAt"`
	OfflineMode bool       `json:"offlineMode"`
	Error       string     `json:"error,omitempty"`
}

// HasFeature reports whether the record is valid and lists the feature.
func (r *LicenseRecord) HasFeature(name string) bool {
	if r == nil || !r.Valid {
		return false
	}
	return slices.Contains(r.Features, name)
}

// clone returns a deep copy so callers cannot mutate Manager state.
func (r *LicenseRecord) clone() *LicenseRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	c.Features = slices.Clone(r.Features)
	return &c
}

// OutcomeKind is the terminal state reached by one Validate call.
type OutcomeKind int

const (
	OutcomeOnlineValid OutcomeKind = iota + 1
	OutcomeOnlineInvalid
	OutcomeOfflineValid
	OutcomeOfflineRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOnlineValid:
		return "online_valid"
	case OutcomeOnlineInvalid:
		return "online_invalid"
	case OutcomeOfflineValid:
		return "offline_valid"
	case OutcomeOfflineRejected:
		return "offline_rejected"
	default:
		return "unvalidated"
	}
}

// RejectReason explains why an offline fallback was refused.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonNoCache
	ReasonCacheCorrupt
	ReasonGraceExpired
	ReasonLicenseExpired
)

func (r RejectReason) String() string {
	switch r {
	case ReasonNoCache:
		return "no_cache"
	case ReasonCacheCorrupt:
		return "cache_corrupt"
	case ReasonGraceExpired:
		return "grace_expired"
	case ReasonLicenseExpired:
		return "license_expired"
	default:
		return "none"
	}
}

// Outcome is the result of Manager.Validate.
//
// Err is nil for OutcomeOnlineValid. For OutcomeOnlineInvalid it is
// ErrMissingLicenseKey or a *RejectedError. For the offline kinds it is the
// network error that triggered the fallback, joined with the rejection cause
// when the fallback failed.
type Outcome struct {
	Kind   OutcomeKind
	Reason RejectReason
	Err    error
}

// Valid reports whether the outcome grants use of the license.
func (o Outcome) Valid() bool {
	return o.Kind == OutcomeOnlineValid || o.Kind == OutcomeOfflineValid
}

func (o Outcome) String() string {
	if o.Reason != ReasonNone {
		return o.Kind.String() + "(" + o.Reason.String() + ")"
	}
	return o.Kind.String()
}
