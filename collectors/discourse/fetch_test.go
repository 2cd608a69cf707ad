package discourse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"community-digest/config"
)

func newDiscourseServer(t *testing.T, pages [][]listTopic) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/latest.json", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "true", r.URL.Query().Get("no_definitions"))
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)

		var resp listResponse
		if page-1 < len(pages) {
			resp.TopicList.Topics = pages[page-1]
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	mux.HandleFunc("/t/", func(w http.ResponseWriter, r *http.Request) {
		topicID := r.URL.Path[len("/t/"):]
		var resp topicResponse
		resp.PostStream.Posts = []struct {
			Cooked  string `json:"cooked"`
			PostURL string `json:"post_url"`
		}{
			{Cooked: "<p>Hello <b>World</b></p>", PostURL: "/t/topic/" + topicID + "/1"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	return httptest.NewServer(mux)
}

func newTestCollector(srvURL string) *Collector {
	c := NewCollector(&config.Config{
		DiscourseAPI:       srvURL + "/latest.json",
		DiscourseDetailAPI: srvURL + "/t/{topic_id}",
	}, zap.NewNop())
	c.pageDelay = 0
	return c
}

func TestCollectExcludesAnnouncementCategory(t *testing.T) {
	pages := [][]listTopic{{
		{ID: 1, Title: "BMC 启动问题", CreatedAt: "2025-06-07T10:00:00.000Z", LastPostedAt: "2025-06-07T11:00:00.000Z", CategoryID: 5},
		{ID: 2, Title: "Release-Ankündigung", CreatedAt: "2025-06-07T10:00:00.000Z", LastPostedAt: "2025-06-07T11:00:00.000Z", CategoryID: 40},
	}}
	srv := newDiscourseServer(t, pages)
	defer srv.Close()

	watermark, _ := time.Parse("2006-01-02 15:04:05", "2025-06-06 00:00:00")
	items, err := newTestCollector(srv.URL).Collect(context.Background(), watermark)
	require.NoError(t, err)

	require.Len(t, items, 1)
	require.Equal(t, "1", items[0].ID)
	require.Equal(t, "Hello World", items[0].Body)
	require.Equal(t, srv.URL+"/t/topic/1/1", items[0].URL)
	require.Equal(t, "2025-06-07 10:00:00", items[0].CreatedAt)
	require.Equal(t, "2025-06-07 11:00:00", items[0].UpdatedAt)
}

func TestCollectStopsAtShortPage(t *testing.T) {
	full := make([]listTopic, shortPageSize)
	for i := range full {
		full[i] = listTopic{
			ID: i + 1, Title: "t",
			CreatedAt: "2025-06-07T10:00:00.000Z", LastPostedAt: "2025-06-07T11:00:00.000Z",
		}
	}
	short := []listTopic{{
		ID: 100, Title: "letztes Topic",
		CreatedAt: "2025-06-07T10:00:00.000Z", LastPostedAt: "2025-06-07T11:00:00.000Z",
	}}
	pages := [][]listTopic{full, short, full}

	srv := newDiscourseServer(t, pages)
	defer srv.Close()

	watermark, _ := time.Parse("2006-01-02 15:04:05", "2025-06-06 00:00:00")
	items, err := newTestCollector(srv.URL).Collect(context.Background(), watermark)
	require.NoError(t, err)

	// Die kurze zweite Seite beendet den Cursor; die dritte wird nie angefragt.
	require.Len(t, items, shortPageSize+1)
}

func TestCollectFiltersByWatermark(t *testing.T) {
	pages := [][]listTopic{{
		{ID: 1, Title: "alt", CreatedAt: "2025-01-01T10:00:00.000Z", LastPostedAt: "2025-01-01T11:00:00.000Z"},
		{ID: 2, Title: "neu", CreatedAt: "2025-06-07T10:00:00.000Z", LastPostedAt: "2025-06-07T11:00:00.000Z"},
	}}
	srv := newDiscourseServer(t, pages)
	defer srv.Close()

	watermark, _ := time.Parse("2006-01-02 15:04:05", "2025-06-06 00:00:00")
	items, err := newTestCollector(srv.URL).Collect(context.Background(), watermark)
	require.NoError(t, err)

	require.Len(t, items, 1)
	require.Equal(t, "2", items[0].ID)
}

func TestCollectSolvedTopicsClosed(t *testing.T) {
	pages := [][]listTopic{{
		{ID: 1, Title: "gelöst", CreatedAt: "2025-06-07T10:00:00.000Z", LastPostedAt: "2025-06-07T11:00:00.000Z", HasAcceptedAnswer: true},
	}}
	srv := newDiscourseServer(t, pages)
	defer srv.Close()

	watermark, _ := time.Parse("2006-01-02 15:04:05", "2025-06-06 00:00:00")
	items, err := newTestCollector(srv.URL).Collect(context.Background(), watermark)
	require.NoError(t, err)

	require.Len(t, items, 1)
	require.True(t, items[0].Closed)
	require.Equal(t, "closed", items[0].State)
}

func TestStripHTML(t *testing.T) {
	require.Equal(t, "Hello World", stripHTML("<p>Hello   <b>World</b></p>"))
	require.Equal(t, "报错 信息", stripHTML("<div>报错\n<span>信息</span></div>"))
	require.Equal(t, "", stripHTML(""))
}
