//go:build !gcp

package artifacts

import (
	"context"
	"fmt"

	"github.com/initializ/distpub/types"
)

func newGCSStore(ctx context.Context, ref types.StoreRef, opts StoreOptions) (Store, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
