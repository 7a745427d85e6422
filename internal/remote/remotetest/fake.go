// Package remotetest provides an in-memory remote.API for tests.
package remotetest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"propsync/internal/model"
	"propsync/internal/remote"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

type Call struct {
	Op    string
	Key   string
	Name  string
	Index int
	Bulk  bool
}

type attachment struct {
	model.Attachment
	key    string
	chunks [][]byte
}

// Fake stores properties and attachments in memory and records every call.
type Fake struct {
	mu          sync.Mutex
	props       map[string]model.Property
	attachments map[string]*attachment
	calls       []Call

	// Now supplies timestamps in epoch millis.
	Now func() int64
	// Fail, when set, is consulted before every call.
	Fail func(op, key string) error
}

var _ remote.API = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		props:       make(map[string]model.Property),
		attachments: make(map[string]*attachment),
		Now:         func() int64 { return time.Now().UnixMilli() },
	}
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of one operation.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Property returns a stored property.
func (f *Fake) Property(key string) (model.Property, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.props[key]
	return p, ok
}

// SetProperty stores p as is, bypassing call recording.
func (f *Fake) SetProperty(p model.Property) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[p.Key] = p
}

// SetAttachment stores content split into chunkSize chunks under key.
func (f *Fake) SetAttachment(key, name, collection string, content []byte, chunkSize int) model.Attachment {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := &attachment{key: key}
	a.Name = name
	a.UUID = uuid.NewString()
	a.CollectionName = collection
	a.Length = int64(len(content))

	var sums []string
	for off := 0; off < len(content); off += chunkSize {
		end := min(off+chunkSize, len(content))
		chunk := append([]byte(nil), content[off:end]...)
		a.chunks = append(a.chunks, chunk)
		sums = append(sums, digest(chunk))
	}
	a.NumberOfChunks = len(a.chunks)
	a.Checksum = digest([]byte(strings.Join(sums, "")))

	f.attachments[attachmentID(key, name)] = a
	return a.Attachment
}

// CorruptChunk replaces one stored chunk so downloads fail verification.
func (f *Fake) CorruptChunk(key, name string, index int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments[attachmentID(key, name)].chunks[index] = data
}

// TruncateChunks drops every stored chunk from index n on while the
// attachment still advertises its original NumberOfChunks.
func (f *Fake) TruncateChunks(key, name string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.attachments[attachmentID(key, name)]
	a.chunks = a.chunks[:n]
}

// Chunks returns the stored chunks of an attachment.
func (f *Fake) Chunks(key, name string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attachments[attachmentID(key, name)]
	if !ok {
		return nil
	}
	return a.chunks
}

func (f *Fake) record(c Call) error {
	f.calls = append(f.calls, c)
	if f.Fail != nil {
		return f.Fail(c.Op, c.Key)
	}
	return nil
}

func (f *Fake) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "exists", Key: key}); err != nil {
		return false, err
	}
	_, ok := f.props[key]
	return ok, nil
}

func (f *Fake) Put(_ context.Context, in model.PutRequest) (model.PutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "put", Key: in.Key, Bulk: in.Bulk}); err != nil {
		return "", err
	}

	now := f.Now()
	existing, ok := f.props[in.Key]
	if ok {
		switch in.ExistStrategy {
		case model.ExistSkip:
			return model.PutSkip, nil
		case model.ExistFail:
			return "", &remote.APIError{Code: remote.CodeAlreadyExists, Message: in.Key, Status: 409}
		}
		existing.Type = in.Type
		existing.Value = in.Value
		existing.Updated = now
		f.props[in.Key] = existing
		return model.PutUpdate, nil
	}

	f.props[in.Key] = model.Property{
		Key:     in.Key,
		Type:    in.Type,
		Value:   in.Value,
		Created: now,
	}
	return model.PutCreate, nil
}

func (f *Fake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "delete", Key: key}); err != nil {
		return err
	}

	if base, ok := strings.CutSuffix(key, "/**"); ok {
		for k := range f.props {
			if k == base || strings.HasPrefix(k, base+"/") {
				f.deleteLocked(k)
			}
		}
		return nil
	}

	f.deleteLocked(key)
	return nil
}

func (f *Fake) deleteLocked(key string) {
	delete(f.props, key)
	for id, a := range f.attachments {
		if a.key == key {
			delete(f.attachments, id)
		}
	}
}

func (f *Fake) List(_ context.Context, filter string) ([]model.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "list", Key: filter}); err != nil {
		return nil, err
	}

	var out []model.Property
	for k, p := range f.props {
		if filter == "" || doublestar.MatchUnvalidated(filter, k) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *Fake) PutAttachment(_ context.Context, key, name, collection string, length int64, bulk bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "put_attachment", Key: key, Name: name, Bulk: bulk}); err != nil {
		return err
	}

	a := &attachment{key: key}
	a.Name = name
	a.UUID = uuid.NewString()
	a.CollectionName = collection
	a.Length = length
	f.attachments[attachmentID(key, name)] = a
	return nil
}

func (f *Fake) PutChunk(_ context.Context, key, name string, index int, data []byte, bulk bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "put_chunk", Key: key, Name: name, Index: index, Bulk: bulk}); err != nil {
		return err
	}

	a, ok := f.attachments[attachmentID(key, name)]
	if !ok {
		return &remote.APIError{Code: remote.CodeNotFound, Message: key + "/" + name, Status: 404}
	}
	if index != len(a.chunks) {
		return &remote.APIError{Code: remote.CodeBadRequest, Message: fmt.Sprintf("unexpected chunk %d", index), Status: 400}
	}
	a.chunks = append(a.chunks, append([]byte(nil), data...))
	a.NumberOfChunks = len(a.chunks)
	return nil
}

func (f *Fake) PutChecksum(_ context.Context, key, name, checksum string, bulk bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "put_checksum", Key: key, Name: name, Bulk: bulk}); err != nil {
		return err
	}

	a, ok := f.attachments[attachmentID(key, name)]
	if !ok {
		return &remote.APIError{Code: remote.CodeNotFound, Message: key + "/" + name, Status: 404}
	}

	var sums []string
	for _, c := range a.chunks {
		sums = append(sums, digest(c))
	}
	if actual := digest([]byte(strings.Join(sums, ""))); actual != checksum {
		return &remote.APIError{Code: remote.CodeChecksumMismatch, Message: "expected " + actual, Status: 409}
	}
	a.Checksum = checksum

	if p, ok := f.props[key]; ok {
		p.Updated = f.Now()
		f.props[key] = p
	}
	return nil
}

func (f *Fake) ListAttachments(_ context.Context, key, collection string) ([]model.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "list_attachments", Key: key}); err != nil {
		return nil, err
	}

	var out []model.Attachment
	for _, a := range f.attachments {
		if a.key != key || (collection != "" && a.CollectionName != collection) {
			continue
		}
		out = append(out, a.Attachment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) GetChunk(_ context.Context, id string, index int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Op: "get_chunk", Key: id, Index: index}); err != nil {
		return nil, err
	}

	for _, a := range f.attachments {
		if a.UUID != id {
			continue
		}
		if index >= len(a.chunks) {
			return nil, nil
		}
		return a.chunks[index], nil
	}
	return nil, &remote.APIError{Code: remote.CodeNotFound, Message: id, Status: 404}
}

func attachmentID(key, name string) string {
	return key + "\x00" + name
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
