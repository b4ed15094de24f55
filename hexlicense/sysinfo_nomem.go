//go:build !linux && !darwin

package hexlicense

func totalMemory() (uint64, bool) {
	return 0, false
}
