//go:build linux || darwin

package runconfig

import "syscall"

// getrlimitNoFile reads the process's soft RLIMIT_NOFILE.
func getrlimitNoFile() (uint64, bool) {
	var rl syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rl); err != nil {
		return 0, false
	}
	return uint64(rl.Cur), true
}
