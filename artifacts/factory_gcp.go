//go:build gcp

package artifacts

import (
	"context"

	"github.com/initializ/distpub/types"
)

func newGCSStore(ctx context.Context, ref types.StoreRef, opts StoreOptions) (Store, error) {
	return NewGCSStore(ctx, GCSStoreConfig{
		Bucket: ref.Bucket,
		Prefix: ref.Prefix,
		RunID:  opts.RunID,
	})
}
