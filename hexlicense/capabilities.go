package hexlicense

import (
	"crypto/aes"
	"net"
)

// Capabilities records which optional host facilities are usable.
// It is resolved once and threaded through Config; components branch on these
// flags instead of probing the host themselves.
type Capabilities struct {
	// HasNetInfo is true when interfaces and memory can be read natively.
	// When false, MAC addresses come from OS commands and memory is omitted.
	HasNetInfo bool `yaml:"has_net_info"`
	// HasCrypto is true when AES-256 is available. When false the offline
	// cache is never written and offline validation always fails closed.
	HasCrypto bool `yaml:"has_crypto"`
}

// DetectCapabilities probes the host once.
func DetectCapabilities() Capabilities {
	var caps Capabilities
	if _, err := net.Interfaces(); err == nil {
		caps.HasNetInfo = true
	}
	if _, err := aes.NewCipher(make([]byte, KeySize)); err == nil {
		caps.HasCrypto = true
	}
	return caps
}
