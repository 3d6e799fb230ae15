package common

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/whosonfirst/go-reader/v2"
)

var readers = make(map[string]reader.Reader)
var readers_mu = new(sync.Mutex)

// NewReader returns a whosonfirst/go-reader.Reader instance. Instances
// are cached in memory for repeat lookups.
func NewReader(ctx context.Context, uri string) (reader.Reader, error) {

	readers_mu.Lock()
	defer readers_mu.Unlock()

	r, ok := readers[uri]

	if ok {
		return r, nil
	}

	r, err := reader.NewReader(ctx, uri)

	if err != nil {
		return nil, fmt.Errorf("Failed to create reader for '%s', %w", uri, err)
	}

	readers[uri] = r
	return r, nil
}

// ReadAll reads the body of key from the reader for uri.
func ReadAll(ctx context.Context, uri string, key string) ([]byte, error) {

	r, err := NewReader(ctx, uri)

	if err != nil {
		return nil, err
	}

	fh, err := r.Read(ctx, key)

	if err != nil {
		return nil, fmt.Errorf("Failed to read %s, %w", key, err)
	}

	defer fh.Close()

	body, err := io.ReadAll(fh)

	if err != nil {
		return nil, fmt.Errorf("Failed to read body of %s, %w", key, err)
	}

	return body, nil
}
