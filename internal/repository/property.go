package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"propsync/internal/model"
	"propsync/internal/transfer"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("property already exists")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrLengthMismatch   = errors.New("length mismatch")
)

// PropertyRepository is the storage of the development property server.
type PropertyRepository struct {
	db *gorm.DB
}

func NewPropertyRepository(db *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// Models lists the records PropertyRepository needs migrated.
func Models() []any {
	return []any{&model.PropertyRecord{}, &model.AttachmentRecord{}, &model.ChunkRecord{}}
}

func (r *PropertyRepository) Exists(key string) (bool, error) {
	return exists(r.db, key)
}

func (r *PropertyRepository) Put(req model.PutRequest, now int64) (model.PutResult, error) {
	if req.Type == "" {
		req.Type = model.TypeText
	}

	var result model.PutResult
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var rec model.PropertyRecord
		err := tx.Where("prop_key = ?", req.Key).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = model.PropertyRecord{
				Key:       req.Key,
				Type:      req.Type,
				Value:     req.Value,
				EvalValue: req.EvalValue,
				Created:   now,
			}
			result = model.PutCreate
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}

		switch req.ExistStrategy {
		case model.ExistSkip:
			result = model.PutSkip
			return nil
		case model.ExistFail:
			return fmt.Errorf("%s: %w", req.Key, ErrAlreadyExists)
		}

		rec.Type = req.Type
		rec.Value = req.Value
		rec.EvalValue = req.EvalValue
		rec.Updated = now
		result = model.PutUpdate
		return tx.Save(&rec).Error
	})

	return result, err
}

// Delete removes key, or key and every key below it when key ends in "/**",
// together with their attachments. It returns the number of properties
// removed.
func (r *PropertyRepository) Delete(key string) (int64, error) {
	var removed int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		keys := []string{key}
		if base, ok := strings.CutSuffix(key, "/**"); ok {
			var all []string
			if err := tx.Model(&model.PropertyRecord{}).Pluck("prop_key", &all).Error; err != nil {
				return err
			}
			keys = keys[:0]
			for _, k := range all {
				if k == base || strings.HasPrefix(k, base+"/") {
					keys = append(keys, k)
				}
			}
		}
		if len(keys) == 0 {
			return nil
		}

		var ids []uint
		if err := tx.Model(&model.AttachmentRecord{}).Where("prop_key IN ?", keys).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := tx.Where("attachment_id IN ?", ids).Delete(&model.ChunkRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", ids).Delete(&model.AttachmentRecord{}).Error; err != nil {
				return err
			}
		}

		res := tx.Where("prop_key IN ?", keys).Delete(&model.PropertyRecord{})
		removed = res.RowsAffected
		return res.Error
	})

	return removed, err
}

// List returns the properties whose key matches the doublestar filter, or
// every property for an empty filter.
func (r *PropertyRepository) List(filter string) ([]model.Property, error) {
	if filter != "" && !doublestar.ValidatePattern(filter) {
		return nil, fmt.Errorf("invalid filter %q", filter)
	}

	var recs []model.PropertyRecord
	if err := r.db.Order("prop_key").Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]model.Property, 0, len(recs))
	for _, rec := range recs {
		if filter == "" || doublestar.MatchUnvalidated(filter, rec.Key) {
			out = append(out, rec.Property())
		}
	}
	return out, nil
}

// PutAttachment starts a fresh upload of key/name, discarding chunks of any
// previous upload under the same name.
func (r *PropertyRepository) PutAttachment(key, name, collection string, length int64) (model.AttachmentRecord, error) {
	var rec model.AttachmentRecord
	err := r.db.Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("property %s: %w", key, ErrNotFound)
		}

		err = tx.Where("prop_key = ? AND name = ?", key, name).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = model.AttachmentRecord{Key: key, Name: name}
		case err != nil:
			return err
		default:
			if err := tx.Where("attachment_id = ?", rec.ID).Delete(&model.ChunkRecord{}).Error; err != nil {
				return err
			}
		}

		rec.UUID = uuid.NewString()
		rec.Collection = collection
		rec.Length = length
		rec.Checksum = ""
		rec.Verified = false
		return tx.Save(&rec).Error
	})

	return rec, err
}

func (r *PropertyRepository) PutChunk(key, name string, index int, data []byte) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var att model.AttachmentRecord
		err := tx.Where("prop_key = ? AND name = ?", key, name).First(&att).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("attachment %s/%s: %w", key, name, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if err := tx.Where("attachment_id = ? AND position = ?", att.ID, index).
			Delete(&model.ChunkRecord{}).Error; err != nil {
			return err
		}

		return tx.Create(&model.ChunkRecord{
			AttachmentID: att.ID,
			Position:     index,
			Checksum:     transfer.ChunkChecksum(data),
			Data:         data,
		}).Error
	})
}

// Finalize verifies the client's checksum of checksums against the stored
// chunks and marks the attachment complete.
func (r *PropertyRepository) Finalize(key, name, checksum string, now int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var att model.AttachmentRecord
		err := tx.Where("prop_key = ? AND name = ?", key, name).First(&att).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("attachment %s/%s: %w", key, name, ErrNotFound)
		}
		if err != nil {
			return err
		}

		var chunks []model.ChunkRecord
		if err := tx.Where("attachment_id = ?", att.ID).Order("position").Find(&chunks).Error; err != nil {
			return err
		}

		sums := make([]string, len(chunks))
		var length int64
		for i, c := range chunks {
			if c.Position != i {
				return fmt.Errorf("chunk %d missing: %w", i, ErrLengthMismatch)
			}
			sums[i] = c.Checksum
			length += int64(len(c.Data))
		}

		if length != att.Length {
			return fmt.Errorf("got %d bytes, declared %d: %w", length, att.Length, ErrLengthMismatch)
		}
		if actual := transfer.ChecksumOfChecksums(sums); actual != checksum {
			return fmt.Errorf("expected %s: %w", actual, ErrChecksumMismatch)
		}

		att.Checksum = checksum
		att.Verified = true
		if err := tx.Save(&att).Error; err != nil {
			return err
		}

		return tx.Model(&model.PropertyRecord{}).
			Where("prop_key = ?", key).
			Update("updated", now).Error
	})
}

// ListAttachments returns the verified attachments of key.
func (r *PropertyRepository) ListAttachments(key, collection string) ([]model.Attachment, error) {
	q := r.db.Where("prop_key = ? AND verified = ?", key, true)
	if collection != "" {
		q = q.Where("collection = ?", collection)
	}

	var recs []model.AttachmentRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}

	out := make([]model.Attachment, 0, len(recs))
	for _, rec := range recs {
		var n int64
		if err := r.db.Model(&model.ChunkRecord{}).Where("attachment_id = ?", rec.ID).Count(&n).Error; err != nil {
			return nil, err
		}
		out = append(out, model.Attachment{
			Name:           rec.Name,
			UUID:           rec.UUID,
			CollectionName: rec.Collection,
			Length:         rec.Length,
			NumberOfChunks: int(n),
			Checksum:       rec.Checksum,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetChunk returns chunk index of the attachment with the given uuid, or nil
// past the last chunk.
func (r *PropertyRepository) GetChunk(id string, index int) ([]byte, error) {
	var att model.AttachmentRecord
	err := r.db.Where("uuid = ?", id).First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var chunk model.ChunkRecord
	err = r.db.Where("attachment_id = ? AND position = ?", att.ID, index).First(&chunk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chunk.Data, nil
}

func exists(tx *gorm.DB, key string) (bool, error) {
	var n int64
	err := tx.Model(&model.PropertyRecord{}).Where("prop_key = ?", key).Count(&n).Error
	return n > 0, err
}
