package domain

import "strings"

// DegradationPolicyMode enumerates how access-token checks behave when the cache is unreachable.
type DegradationPolicyMode string

const (
	// DegradationPolicyModeLenient accepts a validly signed access token when revocation state cannot be read.
	DegradationPolicyModeLenient DegradationPolicyMode = "lenient"
	// DegradationPolicyModeStrict rejects requests whenever revocation state cannot be confirmed.
	DegradationPolicyModeStrict DegradationPolicyMode = "strict"
)

// DegradationPolicy centralises the fallback decision for family revocation lookups.
type DegradationPolicy struct {
	mode DegradationPolicyMode
}

// NewDegradationPolicy constructs a policy, defaulting to strict when unspecified.
func NewDegradationPolicy(mode DegradationPolicyMode) DegradationPolicy {
	if mode != DegradationPolicyModeLenient {
		mode = DegradationPolicyModeStrict
	}
	return DegradationPolicy{mode: mode}
}

// ParseDegradationPolicyMode normalises textual input into a supported policy mode.
func ParseDegradationPolicyMode(value string) DegradationPolicyMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(DegradationPolicyModeLenient):
		return DegradationPolicyModeLenient
	default:
		return DegradationPolicyModeStrict
	}
}

// Mode returns the underlying policy mode.
func (p DegradationPolicy) Mode() DegradationPolicyMode {
	if p.mode == "" {
		return DegradationPolicyModeStrict
	}
	return p.mode
}

// AllowsFallback reports whether a request may proceed without revocation data.
func (p DegradationPolicy) AllowsFallback() bool {
	return p.Mode() == DegradationPolicyModeLenient
}
