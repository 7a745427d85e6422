package model

type PropertyType string

const (
	TypeText       PropertyType = "text"
	TypeJSON       PropertyType = "json"
	TypeBinary     PropertyType = "binary"
	TypeAttachment PropertyType = "attachment"
)

type ExistStrategy string

const (
	ExistOverwrite ExistStrategy = "overwrite"
	ExistSkip      ExistStrategy = "skip"
	ExistFail      ExistStrategy = "fail"
)

type PutResult string

const (
	PutCreate PutResult = "create"
	PutUpdate PutResult = "update"
	PutSkip   PutResult = "skip"
)

// Property is a remote key/value entry. Created and Updated are epoch millis.
type Property struct {
	Key     string       `json:"key"`
	Type    PropertyType `json:"type"`
	Value   string       `json:"value,omitempty"`
	Created int64        `json:"created"`
	Updated int64        `json:"updated"`
}

// ModifiedMillis is Updated, falling back to Created for never-updated keys.
func (p Property) ModifiedMillis() int64 {
	if p.Updated != 0 {
		return p.Updated
	}
	return p.Created
}

type PutRequest struct {
	Key           string        `json:"key"`
	Value         string        `json:"value"`
	Type          PropertyType  `json:"type"`
	ExistStrategy ExistStrategy `json:"existStrategy,omitempty"`
	EvalValue     bool          `json:"evalValue,omitempty"`
	Bulk          bool          `json:"-"`
}

type Attachment struct {
	Name           string `json:"name"`
	UUID           string `json:"uuid"`
	CollectionName string `json:"collectionName,omitempty"`
	Length         int64  `json:"length"`
	NumberOfChunks int    `json:"numberOfChunks"`
	Checksum       string `json:"checksum,omitempty"`
}
