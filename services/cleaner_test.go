package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"community-digest/collectors"
	"community-digest/config"
)

type stubEnricher struct {
	calls int
	reply string
	err   error
}

func (s *stubEnricher) Complete(ctx context.Context, systemPrompt, content string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type stubStore struct {
	exists bool
	err    error
}

func (s stubStore) HasCleanData(ctx context.Context, sourceType, sourceID string) (bool, error) {
	return s.exists, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		Prompts: map[string]map[string]string{
			"cann": {"issue": "Fasse das Issue zusammen."},
		},
	}
}

func newTestCleaner(t *testing.T, enricher Enricher, store ExistingStore) *Cleaner {
	t.Helper()
	strategy, err := NewStrategy(testConfig(), "cann", "issue")
	require.NoError(t, err)
	return NewCleaner(strategy, enricher, store, zap.NewNop())
}

func TestBasicClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"html tags removed", "<p>Hello</p>", "Hello"},
		{"special chars replaced", "中文Test123!@#", "中文Test123"},
		{"cjk punctuation kept", "你好，世界。测试！", "你好，世界。测试！"},
		{"mixed", "<div>报错：Error 404</div>", "报错：Error 404"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, BasicClean(tc.in))
		})
	}
}

func TestMailClean(t *testing.T) {
	in := "发件人：someone@example.com\n发送日期：2025-06-06\n收件人：list@example.com\n请问  升级后\n报错如何处理？"
	got := MailClean(in)
	require.NotContains(t, got, "someone")
	require.NotContains(t, got, "list")
	require.Equal(t, "请问 升级后 报错如何处理？", got)
}

func TestProcessBuildsRecord(t *testing.T) {
	enricher := &stubEnricher{reply: "Cleaned content"}
	cleaner := newTestCleaner(t, enricher, stubStore{})

	records := cleaner.Process(context.Background(), []collectors.RawItem{{
		ID:        "123",
		Title:     "安装失败",
		Body:      "详细描述",
		URL:       "https://gitcode.com/org/repo/issues/123",
		CreatedAt: "2025-06-01 10:00:00",
		UpdatedAt: "2025-06-02 11:00:00",
		State:     "open",
	}})

	require.Len(t, records, 1)
	r := records[0]
	require.Equal(t, "123", r.SourceID)
	require.Equal(t, "issue", r.SourceType)
	require.Equal(t, "安装失败", r.Title)
	require.Equal(t, "Cleaned content", r.CleanData)
	require.Equal(t, "Cleaned content", r.TopicSummary)
	require.False(t, r.TopicClosed)
	require.False(t, r.SourceClosed)
	require.False(t, r.IsDeleted)
	require.JSONEq(t, "[]", string(r.History))
	require.Equal(t, 1, enricher.calls)
	require.Equal(t, "2025-06-01 10:00:00", r.CreatedAt.Format(collectors.TimeLayout))
	require.Equal(t, "2025-06-02 11:00:00", r.UpdatedAt.Format(collectors.TimeLayout))
}

func TestProcessClosedState(t *testing.T) {
	cleaner := newTestCleaner(t, &stubEnricher{reply: "x"}, stubStore{})

	records := cleaner.Process(context.Background(), []collectors.RawItem{{
		ID: "7", Title: "t", Body: "b", State: "closed", Closed: true,
	}})

	require.Len(t, records, 1)
	require.True(t, records[0].TopicClosed)
	require.True(t, records[0].SourceClosed)
}

func TestProcessSkipsIncompleteItems(t *testing.T) {
	enricher := &stubEnricher{reply: "x"}
	cleaner := newTestCleaner(t, enricher, stubStore{})

	records := cleaner.Process(context.Background(), []collectors.RawItem{
		{ID: "", Title: "t", Body: "b"},
		{ID: "1", Title: "", Body: "b"},
		{ID: "2", Title: "t", Body: ""},
	})

	require.Empty(t, records)
	require.Zero(t, enricher.calls)
}

func TestProcessSkipsExcludedTitles(t *testing.T) {
	enricher := &stubEnricher{reply: "x"}
	cleaner := newTestCleaner(t, enricher, stubStore{})

	records := cleaner.Process(context.Background(), []collectors.RawItem{
		{ID: "1", Title: "CANN从入门到精通教程", Body: "b"},
		{ID: "2", Title: "我的学习笔记分享", Body: "b"},
	})

	require.Empty(t, records)
	require.Zero(t, enricher.calls)
}

func TestProcessSkipsLLMWhenCleanDataExists(t *testing.T) {
	enricher := &stubEnricher{reply: "should not be used"}
	cleaner := newTestCleaner(t, enricher, stubStore{exists: true})

	records := cleaner.Process(context.Background(), []collectors.RawItem{
		{ID: "123", Title: "t", Body: "b"},
	})

	// Der Datensatz läuft trotzdem durch, aber ohne neuen abgeleiteten Text.
	require.Len(t, records, 1)
	require.Zero(t, enricher.calls)
	require.Empty(t, records[0].CleanData)
	require.Empty(t, records[0].TopicSummary)
}

func TestProcessSkipsItemOnEnricherError(t *testing.T) {
	enricher := &stubEnricher{err: errors.New("upstream down")}
	cleaner := newTestCleaner(t, enricher, stubStore{})

	records := cleaner.Process(context.Background(), []collectors.RawItem{
		{ID: "1", Title: "t", Body: "b"},
		{ID: "2", Title: "t2", Body: "b2"},
	})

	require.Empty(t, records)
	require.Equal(t, 2, enricher.calls)
}

func TestSummarize(t *testing.T) {
	short := "短文本"
	require.Equal(t, short, summarize(short))

	long := ""
	for i := 0; i < 150; i++ {
		long += "试"
	}
	got := summarize(long)
	require.Equal(t, 103, len([]rune(got)))
	require.Equal(t, "...", got[len(got)-3:])
}
