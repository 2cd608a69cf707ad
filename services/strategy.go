package services

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"community-digest/collectors"
	"community-digest/collectors/ascendforum"
	"community-digest/collectors/datastat"
	"community-digest/config"
	"community-digest/llm"
	"community-digest/validators"

	discourseforum "community-digest/collectors/discourse"
)

// Strategy bündelt die community- und quellenspezifischen Regeln des Cleaners:
// System-Prompt, Ausschluss-Regexes und die Mail-Sonderbehandlung.
// Die Patterns sind pro Community getunte Moderationsdaten, keine abgeleitete Logik.
type Strategy struct {
	Community    string
	Kind         string
	SystemPrompt string

	titleExcludes []*regexp.Regexp
	bodyExcludes  []*regexp.Regexp

	// MailClean aktiviert das Entfernen von Mail-Headern vor der Basis-Bereinigung.
	MailClean bool
}

// Allow prüft Titel und Body gegen die Ausschluss-Listen der Community.
func (s Strategy) Allow(title, body string) bool {
	for _, re := range s.titleExcludes {
		if re.MatchString(title) {
			return false
		}
	}
	for _, re := range s.bodyExcludes {
		if re.MatchString(body) {
			return false
		}
	}
	return true
}

// Ausschluss-Patterns pro community/kind; Kurswerbung, Meetings und Verwaltungsmails.
var (
	courseAdTitles = []string{`从入门到精通`, `学习笔记`, `训练营`}
	meetingTitles  = []string{`例会`, `通知`}
	meetingBodies  = []string{`会议主题`}

	titleExcludes = map[string][]string{
		"cann/forum":      courseAdTitles,
		"cann/issue":      courseAdTitles,
		"mindspore/forum": courseAdTitles,
		"mindspore/issue": courseAdTitles,
		"opengauss/mail":  meetingTitles,
		"openeuler/mail":  meetingTitles,
	}
	bodyExcludes = map[string][]string{
		"opengauss/mail": meetingBodies,
		"openeuler/mail": meetingBodies,
	}
)

// kindsByCommunity legt fest, welche Quellenarten eine Community liefert.
var kindsByCommunity = map[string][]string{
	"cann":      {"issue", "forum"},
	"openubmc":  {"issue", "forum"},
	"opengauss": {"issue", "mail"},
	"mindspore": {"issue", "forum"},
	"openeuler": {"issue", "forum", "mail"},
}

// NewStrategy erstellt das Regel-Bündel für (community, kind).
func NewStrategy(cfg *config.Config, community, kind string) (Strategy, error) {
	if _, ok := kindsByCommunity[community]; !ok {
		return Strategy{}, fmt.Errorf("unsupported community: %s", community)
	}

	key := community + "/" + kind
	s := Strategy{
		Community:    community,
		Kind:         kind,
		SystemPrompt: cfg.SystemPrompt(community, kind),
		MailClean:    kind == "mail",
	}
	for _, p := range titleExcludes[key] {
		s.titleExcludes = append(s.titleExcludes, regexp.MustCompile(p))
	}
	for _, p := range bodyExcludes[key] {
		s.bodyExcludes = append(s.bodyExcludes, regexp.MustCompile(p))
	}
	return s, nil
}

// Source ist ein lauffähiges Collector→Cleaner-Paar für eine Quellenart.
type Source struct {
	Kind      string
	Collector collectors.Collector
	Cleaner   *Cleaner
}

// BuildSources erstellt alle (Collector, Cleaner)-Paare der konfigurierten Community.
// Unbekannte Communities führen zu einem expliziten Fehler.
func BuildSources(cfg *config.Config, db *gorm.DB, logger *zap.Logger) ([]Source, error) {
	kinds, ok := kindsByCommunity[cfg.Community]
	if !ok {
		return nil, fmt.Errorf("unsupported community: %s", cfg.Community)
	}

	llmClient := llm.NewClient(cfg.LLMAPIURL, cfg.LLMModel, cfg.LLMAPIKey, logger.Named("llm"))
	store := NewRecordStore(db)

	var sources []Source
	for _, kind := range kinds {
		strategy, err := NewStrategy(cfg, cfg.Community, kind)
		if err != nil {
			return nil, err
		}

		collector, err := buildCollector(cfg, logger, kind)
		if err != nil {
			return nil, err
		}

		sources = append(sources, Source{
			Kind:      kind,
			Collector: collector,
			Cleaner:   NewCleaner(strategy, llmClient, store, logger.Named("cleaner."+kind)),
		})
	}
	return sources, nil
}

func buildCollector(cfg *config.Config, logger *zap.Logger, kind string) (collectors.Collector, error) {
	switch kind {
	case "issue":
		v := validators.NewIssueValidator(nil, logger.Named("validator.issue"))
		return datastat.NewIssueCollector(cfg, logger.Named("collector.issue"), v), nil
	case "mail":
		return datastat.NewMailCollector(cfg, logger.Named("collector.mail"), validators.MailValidator{}), nil
	case "forum":
		return buildForumCollector(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported source kind: %s", kind)
	}
}

// buildForumCollector wählt die Forum-Familie der Community: Ascend-Bereichs-Crawl
// oder Discourse-Cursor-Crawl.
func buildForumCollector(cfg *config.Config, logger *zap.Logger) (collectors.Collector, error) {
	switch cfg.Community {
	case "cann", "mindspore":
		return ascendforum.NewCollector(cfg, logger.Named("collector.forum")), nil
	case "openubmc", "openeuler":
		return discourseforum.NewCollector(cfg, logger.Named("collector.forum")), nil
	default:
		return nil, fmt.Errorf("unsupported community: %s", cfg.Community)
	}
}

// SweepValidators liefert die Validatoren für den Lösch-Sweep, gekeyt nach source_type.
func SweepValidators(cfg *config.Config, logger *zap.Logger) (map[string]validators.Validator, error) {
	forumValidator, err := validators.ForForum(cfg.Community, nil, logger.Named("validator.forum"), cfg.ForumDetailAPI)
	if err != nil {
		return nil, err
	}

	byType := map[string]validators.Validator{
		"issue": validators.NewIssueValidator(nil, logger.Named("validator.issue")),
		"mail":  validators.MailValidator{},
	}
	if forumValidator != nil {
		byType["forum"] = forumValidator
	}
	return byType, nil
}
