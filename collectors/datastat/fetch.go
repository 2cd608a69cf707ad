package datastat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"community-digest/collectors"
	"community-digest/config"
	"community-digest/validators"
)

// Collector pagt durch die DataStat-Analytics-API; eine Instanz pro Quellenart (issue oder mail).
type Collector struct {
	cfg        *config.Config
	client     *http.Client
	auth       *collectors.SessionAuthenticator
	logger     *zap.Logger
	validator  validators.Validator
	sourceType string
	dwsName    string
	pageDelay  time.Duration
}

// NewIssueCollector erstellt einen Collector für Issues der konfigurierten Community.
func NewIssueCollector(cfg *config.Config, logger *zap.Logger, v validators.Validator) *Collector {
	return newCollector(cfg, logger, v, "issue", cfg.DWSName)
}

// NewMailCollector erstellt einen Collector für Mailinglisten-Threads.
func NewMailCollector(cfg *config.Config, logger *zap.Logger, v validators.Validator) *Collector {
	return newCollector(cfg, logger, v, "mail", cfg.MailDWSName)
}

func newCollector(cfg *config.Config, logger *zap.Logger, v validators.Validator, sourceType, dwsName string) *Collector {
	client := collectors.NewHTTPClient(map[string]string{
		"Referer": "https://beta.datastat.osinfra.cn/index-dict",
	})
	return &Collector{
		cfg:    cfg,
		client: client,
		auth: &collectors.SessionAuthenticator{
			LoginURL: cfg.OneIDAPI,
			Account:  cfg.Account,
			Password: cfg.Password,
			ClientID: cfg.ClientID,
			Client:   client,
			Logger:   logger,
		},
		logger:     logger,
		validator:  v,
		sourceType: sourceType,
		dwsName:    dwsName,
		pageDelay:  collectors.PageDelay,
	}
}

// SourceType gibt die Quellenart zurück.
func (c *Collector) SourceType() string {
	return c.sourceType
}

// Collect loggt sich einmal ein und sammelt dann alle Seiten, bis eine leere Seite kommt.
// Ein fehlgeschlagener Login bricht den Lauf ab; eine fehlgeschlagene Seite beendet nur die Pagination.
func (c *Collector) Collect(ctx context.Context, watermark time.Time) ([]collectors.RawItem, error) {
	token, err := c.auth.Login(ctx)
	if err != nil {
		return nil, err
	}

	var items []collectors.RawItem
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s?page=%d&page_size=%d", c.cfg.DataAPIFor(c.cfg.Community), page, c.cfg.PageSize)
		body := queryRequest{
			Community:      c.cfg.Community,
			Dim:            c.dims(),
			Name:           c.dwsName,
			Page:           page,
			PageSize:       c.cfg.PageSize,
			Filters:        c.filters(watermark),
			ConditionLogic: "AND",
			OrderField:     "uuid",
			OrderDir:       "ASC",
		}

		var resp queryResponse
		if !collectors.DoJSON(ctx, c.client, c.logger, http.MethodPost, url, map[string]string{"token": token}, body, &resp) {
			break
		}
		if len(resp.Data) == 0 {
			break
		}

		for _, r := range resp.Data {
			if !c.rowValid(ctx, r) {
				continue
			}
			items = append(items, c.toRawItem(r))
		}
		time.Sleep(c.pageDelay) // Request-Intervall, damit Upstream uns nicht sperrt
	}

	c.logger.Info("DataStat-Collection abgeschlossen",
		zap.String("source_type", c.sourceType), zap.Int("count", len(items)))
	return items, nil
}

// filters baut die per-Kind-Filterkriterien der Analytics-Abfrage.
func (c *Collector) filters(watermark time.Time) []queryFilter {
	ts := watermark.Format(collectors.TimeLayout)
	if c.sourceType == "mail" {
		return []queryFilter{
			{Column: "created_at", Operator: ">", Value: ts},
		}
	}
	return []queryFilter{
		{Column: "is_issue", Operator: "=", Value: "1"},
		{Column: "updated_at", Operator: ">", Value: ts},
		{Column: "private", Operator: "=", Value: "false"},
		{Column: "is_hide", Operator: "is", Value: "null"},
		{Column: "is_removed", Operator: "is", Value: "null"},
	}
}

func (c *Collector) dims() []string {
	if c.sourceType == "mail" {
		return []string{"uuid", "email_id", "subject", "created_at", "content"}
	}
	return []string{"uuid", "html_url", "title", "body", "created_at", "updated_at", "state"}
}

// rowValid prüft die Zeile gegen den Live-Zustand beim Upstream.
func (c *Collector) rowValid(ctx context.Context, r row) bool {
	if c.validator == nil {
		return true
	}
	if c.sourceType == "mail" {
		return c.validator.Validate(ctx, r.UUID)
	}
	return c.validator.Validate(ctx, r.HTMLURL)
}

func (c *Collector) toRawItem(r row) collectors.RawItem {
	if c.sourceType == "mail" {
		return collectors.RawItem{
			ID:        r.EmailID,
			Title:     r.Subject,
			Body:      r.Content,
			URL:       r.UUID,
			CreatedAt: r.CreatedAt,
		}
	}

	// Die uuid hat die Form "<prefix>-<id>"; persistiert wird nur die Upstream-ID.
	id := r.UUID
	if idx := strings.LastIndex(id, "-"); idx >= 0 {
		id = id[idx+1:]
	}
	return collectors.RawItem{
		ID:        id,
		Title:     r.Title,
		Body:      r.Body,
		URL:       r.HTMLURL,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		State:     r.State,
	}
}
