package model

// Change types recorded in the change log.
const (
	ChangeCreate   = "create"
	ChangeUpdate   = "update"
	ChangeComplete = "complete"
	ChangeDelete   = "delete"
)

// EntityTask is the only entity type currently logged.
const EntityTask = "task"

// Change is one append-only entry of the change log.
type Change struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EntityType string `gorm:"column:entity_type;not null" json:"entityType"`
	EntityID   string `gorm:"column:entity_id;not null" json:"entityId"`
	ChangeType string `gorm:"column:change_type;not null" json:"changeType"`
	ChangedAt  int64  `gorm:"column:changed_at;not null" json:"changedAt"`
}

func (Change) TableName() string { return "changes" }

// ChangeSet is the answer to a poll: records after a cursor and the new cursor.
type ChangeSet struct {
	LastID  int64    `json:"lastId"`
	Changes []Change `json:"changes"`
}

// AppMeta is a key/value row of persisted application metadata.
type AppMeta struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;not null"`
}

func (AppMeta) TableName() string { return "app_meta" }

// Metadata keys.
const (
	MetaAppVersion               = "app_version"
	MetaRecurrenceGeneratedUntil = "recurrence_generated_until"
)
