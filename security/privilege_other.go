//go:build !linux

package security

import "errors"

func disablePrivilegeEscalation() error {
	return errors.ErrUnsupported
}
