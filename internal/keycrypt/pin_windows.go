//go:build windows

package keycrypt

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func span(b []byte) (uintptr, uintptr) {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b))), uintptr(len(b))
}

func pin(b []byte) error {
	if len(b) == 0 {
		return windows.ERROR_INVALID_PARAMETER
	}
	return windows.VirtualLock(span(b))
}

func unpin(b []byte) {
	if len(b) > 0 {
		_ = windows.VirtualUnlock(span(b))
	}
}
