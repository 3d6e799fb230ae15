package remove

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/sfomuseum/go-media-clone/common"
	"gocloud.dev/blob/memblob"
)

func TestRemove(t *testing.T) {

	ctx := context.Background()

	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	keys := []string{
		"a.jpg",
		common.TempPrefix + "123.jpg",
		"2024/05/" + common.TempPrefix + "456.png",
		"2024/05/b.jpg",
	}

	for _, k := range keys {

		err := bucket.WriteAll(ctx, k, []byte("x"), nil)

		if err != nil {
			t.Fatalf("Failed to write %s, %v", k, err)
		}
	}

	r, err := NewRemoval(bucket)

	if err != nil {
		t.Fatalf("Failed to create removal, %v", err)
	}

	removed, err := r.Remove(ctx)

	if err != nil {
		t.Fatalf("Failed to remove, %v", err)
	}

	if len(removed) != 0 {
		t.Fatalf("Expected recent temporary files to be kept, removed %v", removed)
	}

	// make sure the files are older than the cutoff
	time.Sleep(5 * time.Millisecond)

	r.MinAge = 0
	r.Dryrun = true

	removed, err = r.Remove(ctx)

	if err != nil {
		t.Fatalf("Failed to remove (dryrun), %v", err)
	}

	if len(removed) != 2 {
		t.Fatalf("Expected 2 files to be reported, got %v", removed)
	}

	ok, _ := bucket.Exists(ctx, keys[1])

	if !ok {
		t.Fatalf("Expected dry run to leave %s alone", keys[1])
	}

	r.Dryrun = false

	removed, err = r.Remove(ctx)

	if err != nil {
		t.Fatalf("Failed to remove, %v", err)
	}

	sort.Strings(removed)

	if len(removed) != 2 || removed[0] != keys[1] || removed[1] != keys[2] {
		t.Fatalf("Unexpected removals %v", removed)
	}

	for i, k := range keys {

		ok, err := bucket.Exists(ctx, k)

		if err != nil {
			t.Fatalf("Failed to check %s, %v", k, err)
		}

		expected := i == 0 || i == 3

		if ok != expected {
			t.Fatalf("Expected exists=%t for %s", expected, k)
		}
	}
}

func TestIsTemporary(t *testing.T) {

	tests := map[string]bool{
		common.TempPrefix + "abc.jpg":          true,
		"x/y/" + common.TempPrefix + "abc.jpg": true,
		"photo.jpg":                            false,
		"x/" + common.TempPrefix + "/a.jpg":    false,
	}

	for key, expected := range tests {

		if IsTemporary(key) != expected {
			t.Fatalf("Expected %t for %s", expected, key)
		}
	}
}
