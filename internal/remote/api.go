// Package remote talks to the property store that mirrors <home>/src.
package remote

import (
	"context"

	"propsync/internal/model"
)

// API is the remote property store. A key ending in "/**" passed to Delete
// removes the whole subtree. GetChunk returns nil at the end of the stream.
type API interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, req model.PutRequest) (model.PutResult, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, filter string) ([]model.Property, error)

	PutAttachment(ctx context.Context, key, name, collection string, length int64, bulk bool) error
	PutChunk(ctx context.Context, key, name string, index int, data []byte, bulk bool) error
	PutChecksum(ctx context.Context, key, name, checksum string, bulk bool) error
	ListAttachments(ctx context.Context, key, collection string) ([]model.Attachment, error)
	GetChunk(ctx context.Context, uuid string, index int) ([]byte, error)
}
