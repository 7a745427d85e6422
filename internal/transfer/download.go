package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/remote"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const partSuffix = ".part"

type Downloader struct {
	api      remote.API
	fs       afero.Fs
	progress ProgressFunc
}

func NewDownloader(api remote.API, fs afero.Fs) *Downloader {
	return &Downloader{api: api, fs: fs}
}

func (d *Downloader) OnProgress(fn ProgressFunc) {
	d.progress = fn
}

// TargetPath is where DownloadAttachment writes ref inside folder.
func TargetPath(ref model.Attachment, folder string) string {
	if ref.CollectionName != "" {
		folder = filepath.Join(folder, ref.CollectionName)
	}
	return filepath.Join(folder, ref.Name)
}

type DownloadResult struct {
	Path    string
	Length  int64
	Chunks  int
	// Partial is set when the stream ended before NumberOfChunks. The
	// received prefix is still renamed into place, unverified.
	Partial bool
}

// DownloadAttachment fetches the chunks of ref in order into a .part file and
// renames it into place. An empty chunk before NumberOfChunks ends the stream
// early. When every chunk arrived and ref carries a checksum, the content is
// verified before the rename.
func (d *Downloader) DownloadAttachment(ctx context.Context, ref model.Attachment, folder string) (*DownloadResult, error) {
	target := TargetPath(ref, folder)
	if err := d.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	part := target + partSuffix
	f, err := d.fs.OpenFile(part, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", part, err)
	}

	fail := func(err error) (*DownloadResult, error) {
		_ = f.Close()
		_ = d.fs.Remove(part)
		return nil, err
	}

	var sums []string
	var written int64
	for index := 0; index < ref.NumberOfChunks; index++ {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		data, err := d.api.GetChunk(ctx, ref.UUID, index)
		if err != nil {
			return fail(err)
		}
		if len(data) == 0 {
			logger.Log.Warn("attachment stream ended early",
				zap.String("name", ref.Name),
				zap.Int("received", index),
				zap.Int("expected", ref.NumberOfChunks))
			break
		}

		if _, err := f.Write(data); err != nil {
			return fail(fmt.Errorf("failed to write %s: %w", part, err))
		}
		sums = append(sums, ChunkChecksum(data))
		written += int64(len(data))

		if d.progress != nil {
			d.progress(written, ref.Length)
		}
	}

	result := &DownloadResult{
		Path:    target,
		Length:  written,
		Chunks:  len(sums),
		Partial: len(sums) < ref.NumberOfChunks,
	}

	if !result.Partial && ref.Checksum != "" {
		if actual := ChecksumOfChecksums(sums); actual != ref.Checksum {
			return fail(&IntegrityError{
				Key:      ref.UUID,
				Name:     ref.Name,
				Expected: ref.Checksum,
				Actual:   actual,
			})
		}
	}

	if err := f.Close(); err != nil {
		_ = d.fs.Remove(part)
		return nil, fmt.Errorf("failed to close %s: %w", part, err)
	}

	if err := d.fs.Rename(part, target); err != nil {
		_ = d.fs.Remove(part)
		return nil, fmt.Errorf("failed to rename %s: %w", part, err)
	}

	logger.Log.Info("attachment downloaded",
		zap.String("path", target),
		zap.Int("chunks", len(sums)),
		zap.String("size", humanize.Bytes(uint64(written))),
		zap.Bool("partial", result.Partial))

	return result, nil
}
