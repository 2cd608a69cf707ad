package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"community-digest/config"
	"community-digest/models"
	"community-digest/storage"
	"community-digest/validators"
)

// Pipeline treibt pro Lauf den Lösch-Sweep und alle Collector→Cleaner-Paare
// der Community, konkateniert die Ergebnisse und übergibt sie dem Upserter.
// Es läuft höchstens eine Invocation gleichzeitig.
type Pipeline struct {
	cfg             *config.Config
	db              *gorm.DB
	logger          *zap.Logger
	sources         []Source
	upserter        *Upserter
	sweepValidators map[string]validators.Validator
	snapshots       *storage.SnapshotStore

	mu  sync.Mutex
	now func() time.Time
}

// NewPipeline verdrahtet Sources, Upserter und Sweep-Validatoren der konfigurierten Community.
func NewPipeline(cfg *config.Config, db *gorm.DB, logger *zap.Logger, snapshots *storage.SnapshotStore) (*Pipeline, error) {
	sources, err := BuildSources(cfg, db, logger)
	if err != nil {
		return nil, err
	}
	sweepValidators, err := SweepValidators(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:             cfg,
		db:              db,
		logger:          logger,
		sources:         sources,
		upserter:        NewUpserter(db, logger.Named("upserter"), cfg.BatchSize),
		sweepValidators: sweepValidators,
		snapshots:       snapshots,
		now:             time.Now,
	}, nil
}

// LastFriday berechnet den Watermark: der jüngste vergangene Freitag 00:00;
// fällt der Lauf selbst auf einen Freitag, die Woche davor.
func LastFriday(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := (int(now.Weekday()) - int(time.Friday) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return midnight.AddDate(0, 0, -offset)
}

// TryRun startet einen Lauf, sofern keiner in Arbeit ist.
func (p *Pipeline) TryRun(ctx context.Context) (int, bool, error) {
	if !p.mu.TryLock() {
		return 0, false, nil
	}
	defer p.mu.Unlock()
	count, err := p.run(ctx)
	return count, true, err
}

// TryStart startet einen Lauf im Hintergrund; false, wenn bereits einer läuft.
// done wird nach Abschluss mit Anzahl und Fehler aufgerufen.
func (p *Pipeline) TryStart(ctx context.Context, done func(count int, err error)) bool {
	if !p.mu.TryLock() {
		return false
	}
	go func() {
		defer p.mu.Unlock()
		done(p.run(ctx))
	}()
	return true
}

// Run blockiert, bis ein etwaiger laufender Durchlauf fertig ist, und startet dann.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run(ctx)
}

func (p *Pipeline) run(ctx context.Context) (int, error) {
	watermark := LastFriday(p.now())
	log := p.logger.With(zap.String("community", p.cfg.Community), zap.Time("watermark", watermark))
	log.Info("Pipeline-Lauf gestartet")

	// Sweep vor der Collection: ungültig gewordene Datensätze als gelöscht markieren.
	if err := p.sweepDeleted(ctx); err != nil {
		log.Error("Lösch-Sweep fehlgeschlagen", zap.Error(err))
	}

	var records []*models.Discussion
	for _, source := range p.sources {
		items, err := source.Collector.Collect(ctx, watermark)
		if err != nil {
			// Z.B. Login-Fehler: für diese Quelle wird nichts gesammelt, die übrigen laufen weiter.
			log.Error("Collection fehlgeschlagen", zap.String("kind", source.Kind), zap.Error(err))
			continue
		}
		log.Info("Collection abgeschlossen", zap.String("kind", source.Kind), zap.Int("raw_items", len(items)))

		if p.snapshots != nil && len(items) > 0 {
			if err := p.snapshots.UploadRawItems(ctx, p.cfg.Community, source.Kind, p.now(), items); err != nil {
				log.Warn("Snapshot-Upload fehlgeschlagen", zap.Error(err))
			}
		}

		records = append(records, source.Cleaner.Process(ctx, items)...)
	}

	if err := p.upserter.Store(ctx, records); err != nil {
		return 0, fmt.Errorf("persistenz: %w", err)
	}

	log.Info("Pipeline-Lauf abgeschlossen", zap.Int("records", len(records)))
	return len(records), nil
}

// sweepDeleted revalidiert jede nicht-gelöschte URL und setzt bei Fehlschlag nur is_deleted.
// Der Sweep läuft über die ganze Tabelle, unabhängig vom Watermark.
func (p *Pipeline) sweepDeleted(ctx context.Context) error {
	var batch []models.Discussion
	flagged := 0

	result := p.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
			for _, record := range batch {
				validator, ok := p.sweepValidators[record.SourceType]
				if !ok || validator.Validate(ctx, record.URL) {
					continue
				}
				if err := p.db.WithContext(ctx).
					Model(&models.Discussion{}).
					Where("id = ?", record.ID).
					Update("is_deleted", true).Error; err != nil {
					return err
				}
				flagged++
			}
			return nil
		})
	if result.Error != nil {
		return result.Error
	}

	p.logger.Info("Lösch-Sweep abgeschlossen", zap.Int("flagged", flagged))
	return nil
}
