// Package transfer moves attachment content to and from the remote in
// ordered, checksummed chunks.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/remote"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ProgressFunc is called after every chunk with bytes done and total.
type ProgressFunc func(done, total int64)

type Metadata struct {
	Name       string
	Collection string
	// Bulk marks every request of the upload as part of an import.
	Bulk bool
}

type UploadResult struct {
	Created  bool
	Length   int64
	Chunks   []Chunk
	Checksum string
}

type Uploader struct {
	api       remote.API
	fs        afero.Fs
	chunkSize int64
	progress  ProgressFunc
}

const DefaultChunkSize = 1 << 20

func NewUploader(api remote.API, fs afero.Fs, chunkSize int64) *Uploader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Uploader{api: api, fs: fs, chunkSize: chunkSize}
}

func (u *Uploader) OnProgress(fn ProgressFunc) {
	u.progress = fn
}

// UploadFile creates the attachment property when missing, then sends the
// file as chunks 0..n-1 followed by the checksum of their checksums.
func (u *Uploader) UploadFile(ctx context.Context, path, key string, meta Metadata) (*UploadResult, error) {
	if meta.Name == "" {
		meta.Name = filepath.Base(path)
	}

	f, err := u.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	size := info.Size()

	result := &UploadResult{Length: size}

	exists, err := u.api.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		if _, err := u.api.Put(ctx, model.PutRequest{
			Key:           key,
			Type:          model.TypeAttachment,
			ExistStrategy: model.ExistSkip,
			Bulk:          meta.Bulk,
		}); err != nil {
			return nil, err
		}
		result.Created = true
	}

	if err := u.api.PutAttachment(ctx, key, meta.Name, meta.Collection, size, meta.Bulk); err != nil {
		return nil, err
	}

	logger.Log.Debug("uploading attachment",
		zap.String("key", key),
		zap.String("name", meta.Name),
		zap.String("size", humanize.Bytes(uint64(size))))

	buf := make([]byte, u.chunkSize)
	var offset int64
	for index := 0; offset < size; index++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if n == 0 {
			break
		}

		data := buf[:n]
		if err := u.api.PutChunk(ctx, key, meta.Name, index, data, meta.Bulk); err != nil {
			return nil, err
		}

		result.Chunks = append(result.Chunks, Chunk{
			Index:    index,
			Offset:   offset,
			Length:   n,
			Checksum: ChunkChecksum(data),
		})
		offset += int64(n)

		if u.progress != nil {
			u.progress(offset, size)
		}
	}

	result.Checksum = ChecksumOfChecksums(checksums(result.Chunks))

	if err := u.api.PutChecksum(ctx, key, meta.Name, result.Checksum, meta.Bulk); err != nil {
		if errors.Is(err, remote.ErrChecksumMismatch) {
			return nil, &IntegrityError{Key: key, Name: meta.Name, Expected: result.Checksum, Err: err}
		}
		return nil, err
	}

	if !meta.Bulk {
		logger.Log.Info("attachment uploaded",
			zap.String("key", key),
			zap.String("name", meta.Name),
			zap.Int("chunks", len(result.Chunks)),
			zap.String("size", humanize.Bytes(uint64(size))))
	}

	return result, nil
}
