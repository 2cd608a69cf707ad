package ascendforum

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"community-digest/collectors"
	"community-digest/config"
)

// ascendTimeLayout ist das kompakte Zeitformat der Ascend-Forum-API.
const ascendTimeLayout = "20060102150405"

// sectionIDs sind die beobachteten Forum-Bereiche (CANN).
var sectionIDs = []string{"0106101385921175004", "0163125572293226003"}

type listResponse struct {
	Data struct {
		TotalCount int         `json:"totalCount"`
		ResultList []listTopic `json:"resultList"`
	} `json:"data"`
}

type listTopic struct {
	TopicID      string `json:"topicId"`
	Title        string `json:"title"`
	CreateTime   string `json:"createTime"`
	LastPostTime string `json:"lastPostTime"`
	Solved       int    `json:"solved"`
}

type detailResponse struct {
	Data struct {
		Result struct {
			Content string `json:"content"`
		} `json:"result"`
	} `json:"data"`
}

// Collector crawlt die fest konfigurierten Forum-Bereiche des Ascend-Forums.
// Die erste Seite liefert totalCount, daraus ergibt sich die Seitenzahl.
type Collector struct {
	cfg       *config.Config
	client    *http.Client
	logger    *zap.Logger
	sections  []string
	pageDelay time.Duration
}

// NewCollector erstellt einen Collector für das Ascend-Forum.
func NewCollector(cfg *config.Config, logger *zap.Logger) *Collector {
	return &Collector{
		cfg:       cfg,
		client:    collectors.NewHTTPClient(map[string]string{"Referer": "https://www.hiascend.com"}),
		logger:    logger,
		sections:  sectionIDs,
		pageDelay: collectors.PageDelay,
	}
}

// SourceType gibt die Quellenart zurück.
func (c *Collector) SourceType() string {
	return "forum"
}

// Collect sammelt alle Topics, deren letzte Aktivität auf oder nach dem Watermark liegt.
// Eine fehlgeschlagene Seite wird geloggt und übersprungen; die übrigen Bereiche laufen weiter.
func (c *Collector) Collect(ctx context.Context, watermark time.Time) ([]collectors.RawItem, error) {
	var items []collectors.RawItem
	for _, sectionID := range c.sections {
		first, ok := c.fetchPage(ctx, sectionID, 1)
		if !ok {
			c.logger.Error("Erste Forum-Seite konnte nicht geladen werden", zap.String("section", sectionID))
			continue
		}
		items = append(items, c.processPage(ctx, first, watermark)...)

		totalPages := (first.Data.TotalCount + c.cfg.PageSize - 1) / c.cfg.PageSize
		for page := 2; page <= totalPages; page++ {
			if resp, ok := c.fetchPage(ctx, sectionID, page); ok {
				items = append(items, c.processPage(ctx, resp, watermark)...)
			}
			time.Sleep(c.pageDelay) // Request-Intervall, damit Upstream uns nicht sperrt
		}
	}

	c.logger.Info("Ascend-Forum-Collection abgeschlossen", zap.Int("count", len(items)))
	return items, nil
}

func (c *Collector) fetchPage(ctx context.Context, sectionID string, page int) (*listResponse, bool) {
	url := fmt.Sprintf("%s?sectionId=%s&filterCondition=1&pageIndex=%d&pageSize=%d",
		c.cfg.ForumAPI, sectionID, page, c.cfg.PageSize)
	var resp listResponse
	if !collectors.DoJSON(ctx, c.client, c.logger, http.MethodGet, url, nil, nil, &resp) {
		return nil, false
	}
	return &resp, true
}

func (c *Collector) processPage(ctx context.Context, resp *listResponse, watermark time.Time) []collectors.RawItem {
	var items []collectors.RawItem
	for _, topic := range resp.Data.ResultList {
		lastPost, err := time.Parse(ascendTimeLayout, topic.LastPostTime)
		if err != nil || lastPost.Before(watermark) {
			continue
		}
		items = append(items, c.parseTopic(ctx, topic))
	}
	return items
}

func (c *Collector) parseTopic(ctx context.Context, topic listTopic) collectors.RawItem {
	state := "open"
	if topic.Solved == 1 {
		state = "closed"
	}
	return collectors.RawItem{
		ID:        topic.TopicID,
		Title:     topic.Title,
		Body:      c.fetchTopicContent(ctx, topic.TopicID),
		URL:       fmt.Sprintf("https://www.hiascend.com/forum/thread-%s-1-1.html", topic.TopicID),
		CreatedAt: reformatTime(topic.CreateTime),
		UpdatedAt: reformatTime(topic.LastPostTime),
		State:     state,
		Closed:    topic.Solved == 1,
	}
}

// fetchTopicContent holt den vollen Beitragstext über die Detail-API.
func (c *Collector) fetchTopicContent(ctx context.Context, topicID string) string {
	url := fmt.Sprintf("%s?topicId=%s", c.cfg.ForumDetailAPI, topicID)
	var resp detailResponse
	if !collectors.DoJSON(ctx, c.client, c.logger, http.MethodGet, url, nil, nil, &resp) {
		return ""
	}
	return resp.Data.Result.Content
}

func reformatTime(compact string) string {
	t, err := time.Parse(ascendTimeLayout, compact)
	if err != nil {
		return compact
	}
	return t.Format(collectors.TimeLayout)
}
