package ascendforum

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

func newForumServer(t *testing.T, topics []listTopic, pageSize int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("pageIndex"))
		require.NoError(t, err)
		start := (page - 1) * pageSize
		end := start + pageSize
		if start > len(topics) {
			start = len(topics)
		}
		if end > len(topics) {
			end = len(topics)
		}

		var resp listResponse
		resp.Data.TotalCount = len(topics)
		resp.Data.ResultList = topics[start:end]
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		var resp detailResponse
		resp.Data.Result.Content = "Inhalt von Topic " + r.URL.Query().Get("topicId")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	return httptest.NewServer(mux)
}

func newTestCollector(srvURL string) *Collector {
	c := NewCollector(&config.Config{
		PageSize:       2,
		ForumAPI:       srvURL + "/list",
		ForumDetailAPI: srvURL + "/detail",
	}, zap.NewNop())
	c.sections = []string{"0106101385921175004"}
	c.pageDelay = 0
	return c
}

func TestCollectPaginatesViaTotalCount(t *testing.T) {
	topics := []listTopic{
		{TopicID: "101", Title: "Frage 1", CreateTime: "20250607100000", LastPostTime: "20250607110000", Solved: 0},
		{TopicID: "102", Title: "Frage 2", CreateTime: "20250607120000", LastPostTime: "20250608090000", Solved: 1},
		{TopicID: "103", Title: "Frage 3", CreateTime: "20250608100000", LastPostTime: "20250608110000", Solved: 0},
	}
	srv := newForumServer(t, topics, 2)
	defer srv.Close()

	watermark, _ := time.Parse("2006-01-02 15:04:05", "2025-06-06 00:00:00")
	items, err := newTestCollector(srv.URL).Collect(context.Background(), watermark)
	require.NoError(t, err)

	// totalCount 3 bei pageSize 2 → zwei Seiten, alle drei Topics.
	require.Len(t, items, 3)
	require.Equal(t, "101", items[0].ID)
	require.Equal(t, "https://www.hiascend.com/forum/thread-101-1-1.html", items[0].URL)
	require.Equal(t, "Inhalt von Topic 101", items[0].Body)
	require.Equal(t, "2025-06-07 10:00:00", items[0].CreatedAt)
	require.Equal(t, "2025-06-07 11:00:00", items[0].UpdatedAt)
	require.Equal(t, "open", items[0].State)
	require.False(t, items[0].Closed)

	// solved==1 bedeutet gelöst und damit geschlossen.
	require.Equal(t, "closed", items[1].State)
	require.True(t, items[1].Closed)
}

func TestCollectFiltersByLastPostTime(t *testing.T) {
	topics := []listTopic{
		{TopicID: "201", Title: "alt", CreateTime: "20250101100000", LastPostTime: "20250101110000"},
		{TopicID: "202", Title: "neu", CreateTime: "20250607100000", LastPostTime: "20250607110000"},
		{TopicID: "203", Title: "kaputte Zeit", CreateTime: "20250607100000", LastPostTime: "nicht-parsebar"},
	}
	srv := newForumServer(t, topics, 10)
	defer srv.Close()

	watermark, _ := time.Parse("2006-01-02 15:04:05", "2025-06-06 00:00:00")
	items, err := newTestCollector(srv.URL).Collect(context.Background(), watermark)
	require.NoError(t, err)

	require.Len(t, items, 1)
	require.Equal(t, "202", items[0].ID)
}

func TestCollectSkipsUnreachableSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	items, err := newTestCollector(srv.URL).Collect(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, items)
}
