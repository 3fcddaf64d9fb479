//go:build windows

package lockfile

import "syscall"

// isProcessRunning tries to open a handle to pid.
func isProcessRunning(pid int) (bool, string) {
	handle, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false, "process not found"
	}
	_ = syscall.CloseHandle(handle)
	return true, ""
}
