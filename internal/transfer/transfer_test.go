package transfer

import (
	"context"
	"errors"
	"testing"

	"propsync/internal/model"
	"propsync/internal/remote"
	"propsync/internal/remote/remotetest"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func ops(calls []remotetest.Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}

func TestChecksumOfChecksumsIsOrderSensitive(t *testing.T) {
	a := ChunkChecksum([]byte("first"))
	b := ChunkChecksum([]byte("second"))

	assert.NotEqual(t, ChecksumOfChecksums([]string{a, b}), ChecksumOfChecksums([]string{b, a}))
	assert.Equal(t, ChecksumOfChecksums([]string{a, b}), ChunkChecksum([]byte(a+b)))
	assert.Equal(t, emptySHA256, ChecksumOfChecksums(nil))
}

func TestUploadSendsChunksInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ws/src/img/logo.png", []byte("0123456789"), 0644))

	fake := remotetest.New()
	u := NewUploader(fake, fs, 4)

	var progress []int64
	u.OnProgress(func(done, total int64) {
		assert.EqualValues(t, 10, total)
		progress = append(progress, done)
	})

	res, err := u.UploadFile(context.Background(), "/ws/src/img/logo.png", "img/logo", Metadata{})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Len(t, res.Chunks, 3)
	assert.Equal(t, []int64{4, 8, 10}, progress)

	assert.Equal(t, []string{
		"exists", "put", "put_attachment",
		"put_chunk", "put_chunk", "put_chunk",
		"put_checksum",
	}, ops(fake.Calls()))

	chunks := fake.CallsOf("put_chunk")
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "logo.png", c.Name)
	}

	assert.Equal(t, [][]byte{[]byte("0123"), []byte("4567"), []byte("89")}, fake.Chunks("img/logo", "logo.png"))

	p, ok := fake.Property("img/logo")
	require.True(t, ok)
	assert.Equal(t, model.TypeAttachment, p.Type)
}

func TestUploadExistingPropertyIsNotRecreated(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/f.bin", []byte("abc"), 0644))

	fake := remotetest.New()
	fake.SetProperty(model.Property{Key: "f", Type: model.TypeAttachment, Created: 1})

	res, err := NewUploader(fake, fs, 1024).UploadFile(context.Background(), "/f.bin", "f", Metadata{Name: "f.bin"})
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Empty(t, fake.CallsOf("put"))
}

func TestUploadEmptyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/empty.bin", nil, 0644))

	fake := remotetest.New()
	res, err := NewUploader(fake, fs, 4).UploadFile(context.Background(), "/empty.bin", "empty", Metadata{})
	require.NoError(t, err)

	assert.Empty(t, res.Chunks)
	assert.Equal(t, emptySHA256, res.Checksum)
	assert.Empty(t, fake.CallsOf("put_chunk"))
	assert.Len(t, fake.CallsOf("put_checksum"), 1)
}

func TestUploadChecksumRejected(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/f.bin", []byte("abcdef"), 0644))

	fake := remotetest.New()
	fake.Fail = func(op, _ string) error {
		if op == "put_checksum" {
			return &remote.APIError{Code: remote.CodeChecksumMismatch, Message: "nope", Status: 409}
		}
		return nil
	}

	_, err := NewUploader(fake, fs, 4).UploadFile(context.Background(), "/f.bin", "f", Metadata{})
	require.Error(t, err)

	integrity, ok := errors.AsType[*IntegrityError](err)
	require.True(t, ok, "got %T", err)
	assert.Equal(t, "f", integrity.Key)
	assert.ErrorIs(t, err, remote.ErrChecksumMismatch)
}

func TestUploadStopsOnRemoteError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/f.bin", []byte("abcdefgh"), 0644))

	boom := &remote.UnavailableError{Op: "put chunk", Err: errors.New("connection reset")}
	fake := remotetest.New()
	fake.Fail = func(op, _ string) error {
		if op == "put_chunk" {
			return boom
		}
		return nil
	}

	_, err := NewUploader(fake, fs, 4).UploadFile(context.Background(), "/f.bin", "f", Metadata{})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, fake.CallsOf("put_chunk"), 1)
	assert.Empty(t, fake.CallsOf("put_checksum"))
}

func TestDownloadAttachment(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := remotetest.New()
	ref := fake.SetAttachment("docs/manual", "manual.pdf", "", []byte("hello attachment"), 5)

	d := NewDownloader(fake, fs)
	res, err := d.DownloadAttachment(context.Background(), ref, "/ws/src/docs")
	require.NoError(t, err)
	assert.Equal(t, "/ws/src/docs/manual.pdf", res.Path)
	assert.Equal(t, 4, res.Chunks)
	assert.False(t, res.Partial)

	data, err := afero.ReadFile(fs, res.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello attachment", string(data))

	exists, err := afero.Exists(fs, res.Path+partSuffix)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDownloadIntoCollectionFolder(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := remotetest.New()
	ref := fake.SetAttachment("docs/manual", "cover.png", "images", []byte("png"), 2)

	res, err := NewDownloader(fake, fs).DownloadAttachment(context.Background(), ref, "/ws/src/docs")
	require.NoError(t, err)
	assert.Equal(t, "/ws/src/docs/images/cover.png", res.Path)
}

func TestDownloadDetectsTamperedChunk(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := remotetest.New()
	ref := fake.SetAttachment("k", "f.bin", "", []byte("0123456789"), 4)
	fake.CorruptChunk("k", "f.bin", 1, []byte("XXXX"))

	_, err := NewDownloader(fake, fs).DownloadAttachment(context.Background(), ref, "/out")
	_, ok := errors.AsType[*IntegrityError](err)
	require.True(t, ok, "got %v", err)

	for _, p := range []string{"/out/f.bin", "/out/f.bin" + partSuffix} {
		exists, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.False(t, exists, p)
	}
}

func TestDownloadToleratesEarlyEndOfStream(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := remotetest.New()
	ref := fake.SetAttachment("k", "f.bin", "", []byte("0123456789"), 4)
	ref.NumberOfChunks = 5

	res, err := NewDownloader(fake, fs).DownloadAttachment(context.Background(), ref, "/out")
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, int64(10), res.Length)

	data, err := afero.ReadFile(fs, res.Path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
	assert.Len(t, fake.CallsOf("get_chunk"), 4)
}
