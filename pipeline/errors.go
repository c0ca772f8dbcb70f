package pipeline

import (
	"context"
	"errors"

	"github.com/initializ/distpub/artifacts"
	"github.com/initializ/distpub/distribution"
	"github.com/initializ/distpub/identity"
	"github.com/initializ/distpub/permissions"
	"github.com/initializ/distpub/registry"
	"github.com/initializ/distpub/security"
)

// ErrConfiguration wraps configuration load and validation failures.
var ErrConfiguration = errors.New("invalid configuration")

// Category groups failures for the final log line.
type Category string

const (
	CategoryNone           Category = ""
	CategoryPolicy         Category = "policy"
	CategoryMissingInput   Category = "missing-input"
	CategoryAuthentication Category = "authentication"
	CategoryConflict       Category = "conflict"
	CategoryConfiguration  Category = "configuration"
	CategoryInternal       Category = "internal"
)

var categories = []struct {
	target   error
	category Category
}{
	{security.ErrEgressBlocked, CategoryPolicy},
	{security.ErrPrivilegeEscalation, CategoryPolicy},
	{registry.ErrEgressMismatch, CategoryPolicy},
	{permissions.ErrPermissionDenied, CategoryPolicy},
	{artifacts.ErrBundleNotFound, CategoryMissingInput},
	{artifacts.ErrEmptyBundle, CategoryMissingInput},
	{artifacts.ErrIntegrity, CategoryMissingInput},
	{distribution.ErrNoDistributions, CategoryMissingInput},
	{registry.ErrMissingCredential, CategoryMissingInput},
	{registry.ErrAuthentication, CategoryAuthentication},
	{identity.ErrExchange, CategoryAuthentication},
	{registry.ErrConflict, CategoryConflict},
	{ErrConfiguration, CategoryConfiguration},
	{artifacts.ErrDestination, CategoryConfiguration},
	{registry.ErrRejected, CategoryConfiguration},
	{ErrOutOfOrder, CategoryInternal},
	{context.Canceled, CategoryInternal},
	{context.DeadlineExceeded, CategoryInternal},
}

// Classify maps an error to its failure category. The first matching
// sentinel wins; policy violations are checked before anything they wrap.
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}
	for _, c := range categories {
		if errors.Is(err, c.target) {
			return c.category
		}
	}
	return CategoryInternal
}
