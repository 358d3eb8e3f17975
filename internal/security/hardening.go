package security

import "golang.org/x/sys/unix"

// LockProcessMemory requests that the kernel never swap this process's
// pages to disk, keeping the root key and derived subkeys in
// internal/barrier and internal/crypto out of a swap file or core dump
// (§4.2). Best effort: containers without CAP_IPC_LOCK get ENOMEM or
// EPERM back, which the caller logs and continues past rather than
// treats as fatal, matching the spec's "best effort" language.
func LockProcessMemory() error {
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		return err
	}
	return disableCoreDumps()
}

// disableCoreDumps sets RLIMIT_CORE to zero so a crash never writes
// process memory, including any key material still resident, to disk.
func disableCoreDumps() error {
	return unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0})
}
