package common

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"gocloud.dev/blob"
)

// FingerprintFile generates a SHA-1 hash of a file stored in a blob.Bucket instance.
func FingerprintFile(ctx context.Context, bucket *blob.Bucket, path string) (string, error) {

	fh, err := bucket.NewReader(ctx, path, nil)

	if err != nil {
		return "", fmt.Errorf("Failed to open %s for reading, %w", path, err)
	}

	defer fh.Close()

	return Fingerprint(fh)
}

// FingerprintLocalFile generates a SHA-1 hash of a file on the local filesystem.
func FingerprintLocalFile(path string) (string, error) {

	fh, err := os.Open(path)

	if err != nil {
		return "", fmt.Errorf("Failed to open %s for reading, %w", path, err)
	}

	defer fh.Close()

	return Fingerprint(fh)
}

// Fingerprint generates a SHA-1 hash of everything read from r.
func Fingerprint(r io.Reader) (string, error) {

	h := sha1.New()

	_, err := io.Copy(h, r)

	if err != nil {
		return "", fmt.Errorf("Failed to hash body, %w", err)
	}

	hash := h.Sum(nil)
	return hex.EncodeToString(hash[:]), nil
}
