package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"community-digest/collectors"
	"community-digest/models"
)

var (
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
	// Erlaubt bleiben CJK-Ideogramme, ASCII-Buchstaben/-Ziffern und gängige CJK-Interpunktion.
	disallowedPattern = regexp.MustCompile(`[^\x{4e00}-\x{9fa5}a-zA-Z0-9，。！？；：、]`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	mailHeaderPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^\s*发件人：.*$`),
		regexp.MustCompile(`(?m)^\s*发送日期：.*$`),
		regexp.MustCompile(`(?m)^\s*收件人：.*$`),
	}
)

// BasicClean entfernt HTML-Tags und ersetzt jedes Zeichen außerhalb der
// erlaubten Menge durch ein Leerzeichen; führende/abschließende Leerzeichen entfallen.
func BasicClean(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = disallowedPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// MailClean entfernt zusätzlich Mail-Header-Zeilen und kollabiert Whitespace.
func MailClean(text string) string {
	for _, re := range mailHeaderPatterns {
		text = re.ReplaceAllString(text, "")
	}
	text = htmlTagPattern.ReplaceAllString(text, "")
	text = disallowedPattern.ReplaceAllString(text, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Enricher liefert den abgeleiteten Text für ein Item; im Betrieb der LLM-Client.
type Enricher interface {
	Complete(ctx context.Context, systemPrompt, content string) (string, error)
}

// ExistingStore prüft, ob ein nicht-gelöschter Datensatz bereits abgeleiteten Text hat.
type ExistingStore interface {
	HasCleanData(ctx context.Context, sourceType, sourceID string) (bool, error)
}

// Cleaner normalisiert die RawItems eines Collectors zu Discussion-Datensätzen.
// Die Verarbeitung ist strikt sequenziell; ein fehlerhaftes Item bricht nie den Strom ab.
type Cleaner struct {
	strategy Strategy
	enricher Enricher
	store    ExistingStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewCleaner erstellt einen Cleaner für das gegebene Strategie-Bündel.
func NewCleaner(strategy Strategy, enricher Enricher, store ExistingStore, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		strategy: strategy,
		enricher: enricher,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// Process verarbeitet alle Items eines Collector-Laufs. Items mit fehlenden Pflichtfeldern,
// ausgeschlossene Inhalte und LLM-Totalausfälle werden geloggt und übersprungen.
func (c *Cleaner) Process(ctx context.Context, items []collectors.RawItem) []*models.Discussion {
	var records []*models.Discussion
	for _, item := range items {
		record, err := c.buildRecord(ctx, item)
		if err != nil {
			c.logger.Warn("Item übersprungen",
				zap.String("id", item.ID), zap.String("source_type", c.strategy.Kind), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records
}

func (c *Cleaner) buildRecord(ctx context.Context, item collectors.RawItem) (*models.Discussion, error) {
	if !item.Complete() {
		return nil, fmt.Errorf("pflichtfelder fehlen (id/title/body)")
	}
	if !c.strategy.Allow(item.Title, item.Body) {
		return nil, fmt.Errorf("von der Ausschluss-Liste verworfen")
	}

	cleanData, summary, err := c.enrich(ctx, item)
	if err != nil {
		return nil, err
	}

	history := item.History
	if history == "" {
		history = "[]"
	}

	return &models.Discussion{
		SourceID:     item.ID,
		SourceType:   c.strategy.Kind,
		Title:        item.Title,
		Body:         item.Body,
		URL:          item.URL,
		CreatedAt:    c.parseTime(item.CreatedAt),
		UpdatedAt:    c.parseTime(item.UpdatedAt),
		CleanData:    cleanData,
		TopicSummary: summary,
		TopicClosed:  item.Closed,
		SourceClosed: item.State == "closed",
		History:      datatypes.JSON(history),
	}, nil
}

// enrich ruft das LLM nur, wenn noch kein abgeleiteter Text gespeichert ist.
// Beim Skip wird leerer Text emittiert; der Datensatz läuft trotzdem durch den Upsert,
// damit Titel/Body/Closed-State aktualisiert werden.
func (c *Cleaner) enrich(ctx context.Context, item collectors.RawItem) (cleanData, summary string, err error) {
	exists, err := c.store.HasCleanData(ctx, c.strategy.Kind, item.ID)
	if err != nil {
		return "", "", fmt.Errorf("existenz-check: %w", err)
	}
	if exists {
		c.logger.Debug("Abgeleiteter Text vorhanden, LLM-Aufruf übersprungen", zap.String("id", item.ID))
		return "", "", nil
	}

	completion, err := c.enricher.Complete(ctx, c.strategy.SystemPrompt,
		fmt.Sprintf("标题：%s\n内容：%s", item.Title, item.Body))
	if err != nil {
		return "", "", err
	}

	if c.strategy.MailClean {
		cleanData = MailClean(completion)
	} else {
		cleanData = BasicClean(completion)
	}
	return cleanData, summarize(completion), nil
}

// summarize kürzt die Completion auf die ersten 100 Zeichen.
func summarize(completion string) string {
	runes := []rune(completion)
	if len(runes) <= 100 {
		return completion
	}
	return string(runes[:100]) + "..."
}

func (c *Cleaner) parseTime(value string) time.Time {
	if value == "" {
		return c.now()
	}
	t, err := time.Parse(collectors.TimeLayout, value)
	if err != nil {
		return c.now()
	}
	return t
}
