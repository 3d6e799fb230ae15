package common

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/corona10/goimagehash"
)

// ImageHashRsp is a struct representing the results of an image hashing operation.
type ImageHashRsp struct {
	// String label describing the image hashing procedure used.
	Approach string `json:"approach"`
	// The hexidecimal hash of an image.
	Hash string `json:"hash"`
}

// ImageHashes generates the average and difference hashes for im using the
// corona10/goimagehash package. Hashes are returned in that order; an approach which
// fails is logged and omitted.
func ImageHashes(ctx context.Context, im image.Image) ([]*ImageHashRsp, error) {

	approaches := []string{
		"avg",
		"diff",
	}

	type hashResult struct {
		rsp *ImageHashRsp
		err error
	}

	results := make([]hashResult, len(approaches))
	done_ch := make(chan int)

	for idx, a := range approaches {

		go func(idx int, a string) {

			defer func() {
				done_ch <- idx
			}()

			rsp, err := imageHash(ctx, im, a)
			results[idx] = hashResult{rsp: rsp, err: err}

		}(idx, a)
	}

	for remaining := len(approaches); remaining > 0; remaining-- {
		<-done_ch
	}

	err := ctx.Err()

	if err != nil {
		return nil, err
	}

	hashes := make([]*ImageHashRsp, 0)

	for _, r := range results {

		if r.err != nil {
			slog.Error("Failed to generate image hash", "error", r.err)
			continue
		}

		hashes = append(hashes, r.rsp)
	}

	return hashes, nil
}

func imageHash(ctx context.Context, im image.Image, approach string) (*ImageHashRsp, error) {

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		// pass
	}

	var h *goimagehash.ImageHash
	var err error

	switch approach {
	case "avg":
		h, err = goimagehash.AverageHash(im)
	case "diff":
		h, err = goimagehash.DifferenceHash(im)
	default:
		err = errors.New("Unknown approach")
	}

	if err != nil {
		return nil, fmt.Errorf("Failed to process image hash appoach '%s', %w", approach, err)
	}

	rsp := &ImageHashRsp{
		Approach: approach,
		Hash:     h.ToString(),
	}

	return rsp, nil
}
