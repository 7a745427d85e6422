package repository

import (
	"testing"

	"propsync/internal/model"
	"propsync/internal/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPropertyRepo(t *testing.T) *PropertyRepository {
	t.Helper()
	return NewPropertyRepository(openTestDB(t, Models()...))
}

func TestPutStrategies(t *testing.T) {
	repo := newPropertyRepo(t)

	res, err := repo.Put(model.PutRequest{Key: "a/b", Value: "v1", Type: model.TypeText}, 100)
	require.NoError(t, err)
	assert.Equal(t, model.PutCreate, res)

	res, err = repo.Put(model.PutRequest{Key: "a/b", Value: "v2", Type: model.TypeText, ExistStrategy: model.ExistSkip}, 200)
	require.NoError(t, err)
	assert.Equal(t, model.PutSkip, res)

	_, err = repo.Put(model.PutRequest{Key: "a/b", Value: "v3", ExistStrategy: model.ExistFail}, 300)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	res, err = repo.Put(model.PutRequest{Key: "a/b", Value: "v4", Type: model.TypeJSON}, 400)
	require.NoError(t, err)
	assert.Equal(t, model.PutUpdate, res)

	props, err := repo.List("a/*")
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, model.Property{Key: "a/b", Type: model.TypeJSON, Value: "v4", Created: 100, Updated: 400}, props[0])
}

func TestListAndDeleteTree(t *testing.T) {
	repo := newPropertyRepo(t)
	for _, k := range []string{"a", "a/x", "a/y/z", "ab", "b"} {
		_, err := repo.Put(model.PutRequest{Key: k, Value: k}, 1)
		require.NoError(t, err)
	}

	props, err := repo.List("a/**")
	require.NoError(t, err)
	assert.Len(t, props, 3)

	all, err := repo.List("")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	n, err := repo.Delete("a/**")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = repo.Delete("b")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rest, err := repo.List("**")
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "ab", rest[0].Key)

	_, err = repo.List("a/[")
	assert.Error(t, err)
}

func TestAttachmentLifecycle(t *testing.T) {
	repo := newPropertyRepo(t)
	_, err := repo.Put(model.PutRequest{Key: "img/logo", Type: model.TypeAttachment}, 1)
	require.NoError(t, err)

	chunks := [][]byte{[]byte("0123"), []byte("4567"), []byte("89")}
	att, err := repo.PutAttachment("img/logo", "logo.png", "", 10)
	require.NoError(t, err)

	for i, c := range chunks {
		require.NoError(t, repo.PutChunk("img/logo", "logo.png", i, c))
	}

	listed, err := repo.ListAttachments("img/logo", "")
	require.NoError(t, err)
	assert.Empty(t, listed, "unverified attachments are hidden")

	sums := []string{transfer.ChunkChecksum(chunks[0]), transfer.ChunkChecksum(chunks[1]), transfer.ChunkChecksum(chunks[2])}
	assert.ErrorIs(t, repo.Finalize("img/logo", "logo.png", "bogus", 5), ErrChecksumMismatch)
	require.NoError(t, repo.Finalize("img/logo", "logo.png", transfer.ChecksumOfChecksums(sums), 5))

	listed, err = repo.ListAttachments("img/logo", "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, att.UUID, listed[0].UUID)
	assert.Equal(t, 3, listed[0].NumberOfChunks)

	data, err := repo.GetChunk(att.UUID, 2)
	require.NoError(t, err)
	assert.Equal(t, "89", string(data))

	data, err = repo.GetChunk(att.UUID, 3)
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = repo.GetChunk("missing", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	props, err := repo.List("img/logo")
	require.NoError(t, err)
	assert.EqualValues(t, 5, props[0].Updated)

	_, err = repo.Delete("img/logo")
	require.NoError(t, err)
	_, err = repo.GetChunk(att.UUID, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeDetectsShortUpload(t *testing.T) {
	repo := newPropertyRepo(t)
	_, err := repo.Put(model.PutRequest{Key: "f", Type: model.TypeAttachment}, 1)
	require.NoError(t, err)

	_, err = repo.PutAttachment("f", "f.bin", "", 8)
	require.NoError(t, err)
	require.NoError(t, repo.PutChunk("f", "f.bin", 0, []byte("0123")))

	sum := transfer.ChecksumOfChecksums([]string{transfer.ChunkChecksum([]byte("0123"))})
	assert.ErrorIs(t, repo.Finalize("f", "f.bin", sum, 2), ErrLengthMismatch)
}

func TestPutAttachmentRequiresProperty(t *testing.T) {
	repo := newPropertyRepo(t)
	_, err := repo.PutAttachment("nope", "x", "", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
