package syncer

import (
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"propsync/internal/model"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

const sniffLen = 3072

type content struct {
	Type    model.PropertyType
	Value   string
	Size    int64
	Chunked bool
}

// readContent classifies a local file. Text and JSON travel as UTF-8
// values, binaries up to the inline threshold as base64, larger binaries as
// chunked attachments.
func (o *Orchestrator) readContent(path string) (content, error) {
	info, err := o.fs.Stat(path)
	if err != nil {
		return content{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	c := content{Size: info.Size()}

	head, err := readHead(o.fs, path)
	if err != nil {
		return content{}, err
	}

	c.Type = classify(path, head)
	if c.Type == model.TypeBinary && c.Size > o.opts.InlineThreshold {
		c.Type = model.TypeAttachment
		c.Chunked = true
		return c, nil
	}

	data, err := afero.ReadFile(o.fs, path)
	if err != nil {
		return content{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if c.Type != model.TypeBinary && !utf8.Valid(data) {
		c.Type = model.TypeBinary
		if c.Size > o.opts.InlineThreshold {
			c.Type = model.TypeAttachment
			c.Chunked = true
			return c, nil
		}
	}

	if c.Type == model.TypeBinary {
		c.Value = base64.StdEncoding.EncodeToString(data)
	} else {
		c.Value = string(data)
	}
	return c, nil
}

func readHead(fs afero.Fs, path string) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return buf[:n], nil
}

func classify(path string, head []byte) model.PropertyType {
	if len(head) == 0 {
		return model.TypeText
	}

	for m := mimetype.Detect(head); m != nil; m = m.Parent() {
		if m.Is("application/json") {
			return model.TypeJSON
		}
		if m.Is("text/plain") {
			if strings.EqualFold(filepath.Ext(path), ".json") {
				return model.TypeJSON
			}
			return model.TypeText
		}
	}
	return model.TypeBinary
}

// decodeValue turns a property value back into file bytes.
func decodeValue(p model.Property) ([]byte, error) {
	if p.Type != model.TypeBinary {
		return []byte(p.Value), nil
	}

	data, err := base64.StdEncoding.DecodeString(p.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p.Key, err)
	}
	return data, nil
}

// extensionFor is the file extension used for a pulled key that has no
// local file yet.
func extensionFor(t model.PropertyType) string {
	switch t {
	case model.TypeJSON:
		return ".json"
	case model.TypeText:
		return ".txt"
	default:
		return ""
	}
}
