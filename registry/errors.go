// Package registry uploads distributions to a package index through the
// legacy upload API.
package registry

import "errors"

var (
	// ErrAuthentication means the registry rejected the credential.
	ErrAuthentication = errors.New("registry authentication failed")
	// ErrConflict means the file already exists in the registry.
	ErrConflict = errors.New("file already exists")
	// ErrEgressMismatch means the registry host is not reachable under the
	// hardener's egress allowlist.
	ErrEgressMismatch = errors.New("registry host not on egress allowlist")
	// ErrRejected means the registry refused the upload for another reason.
	ErrRejected = errors.New("upload rejected")
	// ErrMissingCredential means no API token was supplied.
	ErrMissingCredential = errors.New("missing registry credential")
)
