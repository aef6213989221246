//go:build linux || darwin || freebsd || netbsd

package local

import "golang.org/x/sys/unix"

func setXattrs(path string, attrs map[string][]byte) int {
	failed := 0
	for k, v := range attrs {
		if err := unix.Lsetxattr(path, k, v, 0); err != nil {
			failed++
		}
	}
	return failed
}
