package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"community-digest/models"
)

// DefaultUpdateColumns sind die Felder, die bei einem Konflikt bedingungslos
// aufgefrischt werden. clean_data/topic_summary kommen nur hinzu, wenn frisch
// berechnet; history und is_deleted bleiben unberührt. Konfigurierbarer
// Policy-Punkt, keine festverdrahtete Annahme.
var DefaultUpdateColumns = []string{"title", "body", "url", "topic_closed", "source_closed", "updated_at"}

// Upserter schreibt Discussion-Datensätze idempotent und in Batches in die Datenbank.
type Upserter struct {
	db            *gorm.DB
	logger        *zap.Logger
	batchSize     int
	updateColumns []string
}

// NewUpserter erstellt einen Upserter mit der Standard-Merge-Policy.
func NewUpserter(db *gorm.DB, logger *zap.Logger, batchSize int) *Upserter {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Upserter{
		db:            db,
		logger:        logger,
		batchSize:     batchSize,
		updateColumns: DefaultUpdateColumns,
	}
}

// Store schreibt alle Datensätze in Batch-Transaktionen. Schlägt ein Batch fehl,
// wird nur dieses zurückgerollt und der Fehler durchgereicht; bereits committete
// Batches bleiben bestehen.
func (u *Upserter) Store(ctx context.Context, records []*models.Discussion) error {
	for start := 0; start < len(records); start += u.batchSize {
		end := start + u.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, record := range batch {
				if err := u.upsertOne(tx, record); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		u.logger.Info("Batch gespeichert", zap.Int("from", start), zap.Int("to", end))
	}
	return nil
}

func (u *Upserter) upsertOne(tx *gorm.DB, record *models.Discussion) error {
	record.CleanData = decodeCleanData(record.CleanData)

	columns := u.updateColumns
	if record.CleanData != "" {
		columns = append(append([]string{}, columns...), "clean_data", "topic_summary")
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "source_type"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(record).Error
}

// decodeCleanData packt doppelt JSON-kodierte Strings eine Ebene aus.
// Schlägt das Dekodieren fehl, wird der Rohwert gespeichert; der Datensatz scheitert nie daran.
func decodeCleanData(value string) string {
	if !strings.HasPrefix(value, `"`) {
		return value
	}
	var decoded string
	if err := json.Unmarshal([]byte(value), &decoded); err != nil {
		return value
	}
	return decoded
}

// RecordStore beantwortet Existenz-Abfragen des Cleaners gegen die Datenbank.
type RecordStore struct {
	db *gorm.DB
}

// NewRecordStore erstellt einen RecordStore.
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// HasCleanData meldet, ob ein nicht-gelöschter Datensatz mit dieser Identität
// bereits nicht-leeren abgeleiteten Text hat.
func (s *RecordStore) HasCleanData(ctx context.Context, sourceType, sourceID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Discussion{}).
		Where("source_type = ? AND source_id = ? AND is_deleted = ? AND clean_data <> ''", sourceType, sourceID, false).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
