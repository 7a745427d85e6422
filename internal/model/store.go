package model

// Records persisted by the development property server.

type PropertyRecord struct {
	ID        uint         `gorm:"primaryKey"`
	Key       string       `gorm:"column:prop_key;uniqueIndex;not null"`
	Type      PropertyType `gorm:"not null"`
	Value     string
	EvalValue bool
	Created   int64 `gorm:"not null"`
	Updated   int64
}

func (r PropertyRecord) Property() Property {
	return Property{
		Key:     r.Key,
		Type:    r.Type,
		Value:   r.Value,
		Created: r.Created,
		Updated: r.Updated,
	}
}

type AttachmentRecord struct {
	ID         uint   `gorm:"primaryKey"`
	UUID       string `gorm:"uniqueIndex;not null"`
	Key        string `gorm:"column:prop_key;index;not null"`
	Name       string `gorm:"not null"`
	Collection string
	Length     int64
	Checksum   string
	Verified   bool
}

type ChunkRecord struct {
	ID           uint `gorm:"primaryKey"`
	AttachmentID uint `gorm:"uniqueIndex:idx_chunk_position;not null"`
	Position     int  `gorm:"uniqueIndex:idx_chunk_position;not null"`
	Checksum     string
	Data         []byte
}
