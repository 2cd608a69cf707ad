package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"community-digest/config"
	"community-digest/validators"
)

func TestStrategyExcludesCourseAds(t *testing.T) {
	for _, community := range []string{"cann", "mindspore"} {
		strategy, err := NewStrategy(&config.Config{}, community, "issue")
		require.NoError(t, err)

		require.False(t, strategy.Allow("CANN从入门到精通教程", "body"))
		require.False(t, strategy.Allow("我的学习笔记分享", "body"))
		require.False(t, strategy.Allow("训练营资料汇总", "body"))
		require.True(t, strategy.Allow("算子编译报错", "body"))
	}
}

func TestStrategyExcludesMeetingMail(t *testing.T) {
	for _, community := range []string{"opengauss", "openeuler"} {
		strategy, err := NewStrategy(&config.Config{}, community, "mail")
		require.NoError(t, err)

		require.False(t, strategy.Allow("SIG例会安排", "body"))
		require.False(t, strategy.Allow("升级通知", "body"))
		require.False(t, strategy.Allow("测试邮件", "会议主题：本周例会"))
		require.True(t, strategy.Allow("数据库启动失败", "请帮忙看下日志"))
	}
}

func TestStrategyIssueTitlesNotExcludedForOtherCommunities(t *testing.T) {
	strategy, err := NewStrategy(&config.Config{}, "openeuler", "issue")
	require.NoError(t, err)
	require.True(t, strategy.Allow("从入门到精通", "body"))
}

func TestStrategyMailCleanFlag(t *testing.T) {
	mail, err := NewStrategy(&config.Config{}, "opengauss", "mail")
	require.NoError(t, err)
	require.True(t, mail.MailClean)

	issue, err := NewStrategy(&config.Config{}, "opengauss", "issue")
	require.NoError(t, err)
	require.False(t, issue.MailClean)
}

func TestStrategySystemPromptFromConfig(t *testing.T) {
	cfg := &config.Config{
		Prompts: map[string]map[string]string{
			"cann": {"forum": "Forum-Prompt"},
		},
	}

	strategy, err := NewStrategy(cfg, "cann", "forum")
	require.NoError(t, err)
	require.Equal(t, "Forum-Prompt", strategy.SystemPrompt)

	other, err := NewStrategy(cfg, "cann", "issue")
	require.NoError(t, err)
	require.Empty(t, other.SystemPrompt)
}

func TestNewStrategyUnknownCommunity(t *testing.T) {
	_, err := NewStrategy(&config.Config{}, "unbekannt", "issue")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported community")
}

func TestSweepValidatorsPerCommunity(t *testing.T) {
	logger := zap.NewNop()

	byType, err := SweepValidators(&config.Config{Community: "cann"}, logger)
	require.NoError(t, err)
	require.Contains(t, byType, "issue")
	require.Contains(t, byType, "mail")
	require.Contains(t, byType, "forum")
	require.IsType(t, &validators.AscendValidator{}, byType["forum"])

	// openGauss hat kein Forum; der Sweep bekommt dafür keinen Validator.
	byType, err = SweepValidators(&config.Config{Community: "opengauss"}, logger)
	require.NoError(t, err)
	require.NotContains(t, byType, "forum")

	_, err = SweepValidators(&config.Config{Community: "unbekannt"}, logger)
	require.Error(t, err)
}
