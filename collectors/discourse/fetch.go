package discourse

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"community-digest/collectors"
	"community-digest/config"
)

// discourseTimeLayout ist das ISO-Format der Discourse-Listings.
const discourseTimeLayout = "2006-01-02T15:04:05.000Z"

// shortPageSize: liefert eine Seite weniger Topics, war es die letzte.
const shortPageSize = 30

// excludedCategoryID filtert die Ankündigungs-Kategorie aus dem Crawl.
const excludedCategoryID = 40

type listResponse struct {
	TopicList struct {
		Topics []listTopic `json:"topics"`
	} `json:"topic_list"`
}

type listTopic struct {
	ID                int    `json:"id"`
	Title             string `json:"title"`
	CreatedAt         string `json:"created_at"`
	LastPostedAt      string `json:"last_posted_at"`
	CategoryID        int    `json:"category_id"`
	HasAcceptedAnswer bool   `json:"has_accepted_answer"`
}

type topicResponse struct {
	PostStream struct {
		Posts []struct {
			Cooked  string `json:"cooked"`
			PostURL string `json:"post_url"`
		} `json:"posts"`
	} `json:"post_stream"`
}

// Collector folgt dem Seiten-Cursor eines Discourse-Forums, bis eine kurze Seite kommt.
type Collector struct {
	cfg       *config.Config
	client    *http.Client
	logger    *zap.Logger
	baseURL   string
	pageDelay time.Duration
}

// NewCollector erstellt einen Collector für Discourse-basierte Foren (z.B. OpenUBMC).
func NewCollector(cfg *config.Config, logger *zap.Logger) *Collector {
	baseURL := strings.TrimSuffix(cfg.DiscourseAPI, "/")
	if idx := strings.Index(baseURL, "/latest"); idx > 0 {
		baseURL = baseURL[:idx]
	}
	return &Collector{
		cfg:       cfg,
		client:    collectors.NewHTTPClient(nil),
		logger:    logger,
		baseURL:   baseURL,
		pageDelay: collectors.PageDelay,
	}
}

// SourceType gibt die Quellenart zurück.
func (c *Collector) SourceType() string {
	return "forum"
}

// Collect sammelt Topics seit dem Watermark; ausgeschlossene Kategorien werden verworfen.
func (c *Collector) Collect(ctx context.Context, watermark time.Time) ([]collectors.RawItem, error) {
	var items []collectors.RawItem
	for page := 1; ; page++ {
		resp, ok := c.fetchPage(ctx, page)
		if !ok {
			break
		}
		items = append(items, c.processPage(ctx, resp, watermark)...)
		if len(resp.TopicList.Topics) < shortPageSize {
			break
		}
		time.Sleep(c.pageDelay) // Request-Intervall, damit Upstream uns nicht sperrt
	}

	c.logger.Info("Discourse-Collection abgeschlossen", zap.Int("count", len(items)))
	return items, nil
}

func (c *Collector) fetchPage(ctx context.Context, page int) (*listResponse, bool) {
	url := fmt.Sprintf("%s?page=%d&no_definitions=true", c.cfg.DiscourseAPI, page)
	var resp listResponse
	if !collectors.DoJSON(ctx, c.client, c.logger, http.MethodGet, url, nil, nil, &resp) {
		return nil, false
	}
	return &resp, true
}

func (c *Collector) processPage(ctx context.Context, resp *listResponse, watermark time.Time) []collectors.RawItem {
	var items []collectors.RawItem
	for _, topic := range resp.TopicList.Topics {
		if topic.CategoryID == excludedCategoryID {
			continue
		}
		lastPosted, err := time.Parse(discourseTimeLayout, topic.LastPostedAt)
		if err != nil || lastPosted.Before(watermark) {
			continue
		}
		items = append(items, c.parseTopic(ctx, topic))
	}
	return items
}

func (c *Collector) parseTopic(ctx context.Context, topic listTopic) collectors.RawItem {
	body, permalink := c.fetchTopicDetail(ctx, topic.ID)
	state := "open"
	if topic.HasAcceptedAnswer {
		state = "closed"
	}
	return collectors.RawItem{
		ID:        fmt.Sprintf("%d", topic.ID),
		Title:     topic.Title,
		Body:      body,
		URL:       permalink,
		CreatedAt: reformatTime(topic.CreatedAt),
		UpdatedAt: reformatTime(topic.LastPostedAt),
		State:     state,
		Closed:    topic.HasAcceptedAnswer,
	}
}

// fetchTopicDetail holt den HTML-bereinigten Text des ersten Posts und den Permalink.
func (c *Collector) fetchTopicDetail(ctx context.Context, topicID int) (body, permalink string) {
	url := strings.ReplaceAll(c.cfg.DiscourseDetailAPI, "{topic_id}", fmt.Sprintf("%d", topicID))
	var resp topicResponse
	if !collectors.DoJSON(ctx, c.client, c.logger, http.MethodGet, url, nil, nil, &resp) {
		return "", ""
	}
	if len(resp.PostStream.Posts) == 0 {
		return "", ""
	}

	first := resp.PostStream.Posts[0]
	if first.PostURL != "" {
		permalink = c.baseURL + first.PostURL
	}
	return stripHTML(first.Cooked), permalink
}

// stripHTML extrahiert den reinen Text aus dem "cooked"-HTML eines Posts.
func stripHTML(cooked string) string {
	if cooked == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cooked))
	if err != nil {
		return cooked
	}
	var parts []string
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	return strings.TrimSpace(strings.Join(strings.Fields(strings.Join(parts, " ")), " "))
}

func reformatTime(iso string) string {
	t, err := time.Parse(discourseTimeLayout, iso)
	if err != nil {
		return iso
	}
	return t.Format(collectors.TimeLayout)
}
