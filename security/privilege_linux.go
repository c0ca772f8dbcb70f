//go:build linux

package security

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// disablePrivilegeEscalation sets no_new_privs on the process. After this
// neither this process nor any child can gain privileges through setuid
// binaries such as sudo. The flag cannot be cleared.
func disablePrivilegeEscalation() error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", err)
	}
	v, err := unix.PrctlRetInt(unix.PR_GET_NO_NEW_PRIVS, 0, 0, 0, 0)
	if err != nil {
		return fmt.Errorf("prctl(PR_GET_NO_NEW_PRIVS): %w", err)
	}
	if v != 1 {
		return fmt.Errorf("no_new_privs still clear after prctl")
	}
	return nil
}
