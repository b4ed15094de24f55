//go:build unix

package hexlicense

import "golang.org/x/sys/unix"

func osRelease() (string, bool) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", false
	}
	return unix.ByteSliceToString(u.Release[:]), true
}
