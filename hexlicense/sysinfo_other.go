//go:build !unix

package hexlicense

func osRelease() (string, bool) {
	return "", false
}
