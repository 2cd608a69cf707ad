package models

import (
	"time"

	"gorm.io/datatypes"
)

// Discussion ist ein eingesammelter Diskussionsbeitrag (Issue, Forum-Topic oder Mail-Thread).
type Discussion struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Stabile Identität beim Upstream; (source_type, source_id) ist der einzige stabile Schlüssel.
	SourceID   string `json:"source_id" gorm:"uniqueIndex:idx_source_identity;not null"`
	SourceType string `json:"source_type" gorm:"uniqueIndex:idx_source_identity;not null"` // issue | forum | mail

	Title string `json:"title" gorm:"type:varchar(512);not null"`
	Body  string `json:"body" gorm:"type:text"`
	URL   string `json:"url" gorm:"type:varchar(512)"`

	// Vom LLM abgeleiteter, bereinigter Text; leer, wenn die Anreicherung übersprungen wurde.
	CleanData    string `json:"clean_data" gorm:"type:text"`
	TopicSummary string `json:"topic_summary" gorm:"type:text"`

	TopicClosed  bool `json:"topic_closed" gorm:"index;default:false"`
	SourceClosed bool `json:"source_closed" gorm:"default:false"`

	// Append-only Verlauf früherer (title, body, timestamp) Snapshots.
	History datatypes.JSON `json:"history,omitempty" gorm:"type:jsonb"`

	// Soft-Delete: Upstream-Inhalt existiert nicht mehr oder ist nicht erreichbar.
	IsDeleted bool `json:"is_deleted" gorm:"index;default:false"`
}

// TableName gibt explizit den Tabellennamen an.
func (Discussion) TableName() string {
	return "discussions"
}
