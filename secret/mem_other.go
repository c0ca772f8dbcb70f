//go:build !linux

package secret

func allocate(size int) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func release([]byte, bool) error { return nil }
