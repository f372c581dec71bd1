//go:build !windows

package keycrypt

import "golang.org/x/sys/unix"

func pin(b []byte) error {
	if len(b) == 0 {
		return unix.EINVAL
	}
	return unix.Mlock(b)
}

func unpin(b []byte) {
	if len(b) > 0 {
		_ = unix.Munlock(b)
	}
}
