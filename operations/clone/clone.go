// Package clone implements the photo.Executor which reads a photo from a source bucket,
// applies its policy rule and GPS fix, and writes the result to a local directory.
package clone

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/sfomuseum/go-media-clone/common"
	"github.com/sfomuseum/go-media-clone/photo"
	"github.com/sfomuseum/go-media-clone/policy"
	"gocloud.dev/blob"
)

// ClonerOptions defines the configuration for a Cloner.
type ClonerOptions struct {
	// The bucket photos are read from.
	Source *blob.Bucket
	// The local directory cloned photos are written to.
	Destination string
	// An optional MetadataWriter. If nil, re-encoded photos lose their EXIF data and no
	// GPS position is written.
	Metadata MetadataWriter
	// Overwrite photos which already exist in Destination.
	Force bool
	// Do everything except write files.
	DryRun bool
	// Record perceptual image hashes for re-encoded photos.
	HashImages bool
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Cloner is a photo.Executor. A Cloner is safe for concurrent use.
type Cloner struct {
	source      *blob.Bucket
	destination string
	metadata    MetadataWriter
	force       bool
	dryrun      bool
	hash_images bool
	logger      *slog.Logger
}

// NewCloner returns a new Cloner, creating the destination directory if necessary.
func NewCloner(opts *ClonerOptions) (*Cloner, error) {

	if opts.Source == nil {
		return nil, fmt.Errorf("Missing source bucket")
	}

	if opts.Destination == "" {
		return nil, fmt.Errorf("Missing destination")
	}

	abs_dest, err := filepath.Abs(opts.Destination)

	if err != nil {
		return nil, fmt.Errorf("Failed to derive absolute path for %s, %w", opts.Destination, err)
	}

	if !opts.DryRun {

		err = os.MkdirAll(abs_dest, 0755)

		if err != nil {
			return nil, fmt.Errorf("Failed to create destination %s, %w", abs_dest, err)
		}
	}

	logger := opts.Logger

	if logger == nil {
		logger = slog.Default()
	}

	c := &Cloner{
		source:      opts.Source,
		destination: abs_dest,
		metadata:    opts.Metadata,
		force:       opts.Force,
		dryrun:      opts.DryRun,
		hash_images: opts.HashImages,
		logger:      logger,
	}

	return c, nil
}

// OutputPath returns the path a photo will be written to under rule.
func (c *Cloner) OutputPath(path string, rule *policy.Rule) string {

	rel_path := filepath.FromSlash(path)

	if !rule.Bypass && rule.Format != policy.FormatPreserve {

		ext := filepath.Ext(rel_path)

		if FormatFromName(ext) != rule.Format {
			rel_path = strings.TrimSuffix(rel_path, ext) + Extension(rule.Format)
		}
	}

	return filepath.Join(c.destination, rel_path)
}

// Execute implements photo.Executor
func (c *Cloner) Execute(ctx context.Context, plan *photo.Plan) (*photo.Result, error) {

	rec := plan.Record
	rule := plan.Rule

	out_path := c.OutputPath(rec.Path, rule)

	logger := c.logger.With("path", rec.Path, "output", out_path)

	rsp := &photo.Result{
		OutputPath: out_path,
		Format:     rule.Format,
	}

	if !c.force {

		_, err := os.Stat(out_path)

		if err == nil {
			logger.Debug("Output already exists, skipping")
			rsp.Existing = true
			return rsp, nil
		}
	}

	body, err := c.source.ReadAll(ctx, rec.Path)

	if err != nil {
		return nil, photo.NewTransformError(rec.Path, photo.StageRead, err)
	}

	out_body := body
	var t *Transformed

	if rule.Bypass {

		rsp.Format = FormatFromName(filepath.Ext(rec.Path))

	} else {

		t, err = Transform(rec.Path, body, rule)

		if err != nil {
			return nil, err
		}

		out_body = t.Body
		rsp.Format = t.Format
		rsp.Resized = t.Resized
		rsp.Converted = t.Converted
	}

	rsp.Bytes = int64(len(out_body))

	if c.hash_images && t != nil {

		hashes, err := common.ImageHashes(ctx, t.Image)

		if err != nil {
			logger.Warn("Failed to hash image", "error", err)
		}

		str_hashes := make([]string, len(hashes))

		for i, h := range hashes {
			str_hashes[i] = h.Hash
		}

		rsp.ImageHash = strings.Join(str_hashes, ",")
	}

	if c.dryrun {
		rsp.GPSAdded = plan.Fix != nil && c.metadata != nil
		logger.Info("[dryrun] write output here", "bytes", rsp.Bytes, "gps", plan.Fix != nil)
		return rsp, nil
	}

	err = os.MkdirAll(filepath.Dir(out_path), 0755)

	if err != nil {
		return nil, photo.NewTransformError(rec.Path, photo.StageWrite, err)
	}

	tmp_path, err := writeTemp(filepath.Dir(out_path), filepath.Ext(out_path), out_body)

	if err != nil {
		return nil, photo.NewTransformError(rec.Path, photo.StageWrite, err)
	}

	defer os.Remove(tmp_path)

	if c.metadata != nil && (plan.Fix != nil || !rule.Bypass) {

		md := &Metadata{
			Fix: plan.Fix,
		}

		if !rule.Bypass {

			src_path, err := writeTemp(filepath.Dir(out_path), filepath.Ext(rec.Path), body)

			if err != nil {
				return nil, photo.NewTransformError(rec.Path, photo.StageMetadata, err)
			}

			defer os.Remove(src_path)

			md.SourcePath = src_path
			md.Normalized = t.Rotated
		}

		err = c.metadata.WriteMetadata(ctx, tmp_path, md)

		if err != nil {
			return nil, photo.NewTransformError(rec.Path, photo.StageMetadata, err)
		}

		rsp.GPSAdded = plan.Fix != nil
	}

	err = atomic.ReplaceFile(tmp_path, out_path)

	if err != nil {
		return nil, photo.NewTransformError(rec.Path, photo.StageWrite, err)
	}

	fp, err := common.FingerprintLocalFile(out_path)

	if err != nil {
		return nil, photo.NewTransformError(rec.Path, photo.StageWrite, err)
	}

	rsp.Fingerprint = fp

	logger.Debug("Wrote photo", "bytes", rsp.Bytes, "resized", rsp.Resized, "converted", rsp.Converted, "gps", rsp.GPSAdded)
	return rsp, nil
}

// writeTemp writes body to a new temporary file in dir and returns its path.
func writeTemp(dir string, ext string, body []byte) (string, error) {

	fh, err := os.CreateTemp(dir, common.TempPrefix+"*"+ext)

	if err != nil {
		return "", fmt.Errorf("Failed to create temporary file, %w", err)
	}

	tmp_path := fh.Name()

	_, err = bytes.NewReader(body).WriteTo(fh)

	if err != nil {
		fh.Close()
		os.Remove(tmp_path)
		return "", fmt.Errorf("Failed to write temporary file, %w", err)
	}

	err = fh.Sync()

	if err != nil {
		fh.Close()
		os.Remove(tmp_path)
		return "", fmt.Errorf("Failed to sync temporary file, %w", err)
	}

	err = fh.Close()

	if err != nil {
		os.Remove(tmp_path)
		return "", fmt.Errorf("Failed to close temporary file, %w", err)
	}

	return tmp_path, nil
}
