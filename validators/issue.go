package validators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// IssueValidator prüft Issue-URLs gegen die Hosting-Backends GitCode und Gitee.
type IssueValidator struct {
	Client *http.Client
	Logger *zap.Logger

	// GitCodeAPIBase ist im Normalbetrieb die öffentliche Web-API; Tests biegen sie um.
	GitCodeAPIBase string
}

// NewIssueValidator erstellt einen Validator für Issue-URLs.
func NewIssueValidator(client *http.Client, logger *zap.Logger) *IssueValidator {
	if client == nil {
		client = NewHTTPClient()
	}
	return &IssueValidator{
		Client:         client,
		Logger:         logger,
		GitCodeAPIBase: "https://web-api.gitcode.com",
	}
}

// Validate prüft zuerst die Sichtbarkeit des Projekts und danach das Issue-Objekt selbst.
// Unbekannte Hosts, private Projekte und jeder Netzwerkfehler gelten als ungültig.
func (v *IssueValidator) Validate(ctx context.Context, target string) bool {
	switch {
	case strings.Contains(target, "gitcode.com"):
		return v.validateGitCode(ctx, target)
	case strings.Contains(target, "gitee.com"):
		return v.validateGitee(ctx, target)
	default:
		return false
	}
}

func (v *IssueValidator) validateGitCode(ctx context.Context, target string) bool {
	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}
	segments := splitPath(parsed.Path)
	if len(segments) < 2 {
		return false
	}
	owner, repo := segments[0], segments[1]
	headers := map[string]string{"Referer": "https://gitcode.com"}

	projectURL := fmt.Sprintf("%s/api/v2/projects/%s%%2F%s/simple", v.GitCodeAPIBase, owner, repo)
	resp := get(ctx, v.Client, v.Logger, projectURL, headers)
	if resp == nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var project struct {
		Visibility string `json:"visibility"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&project); err != nil {
		return false
	}
	if project.Visibility == "private" {
		return false
	}

	issueID := ""
	for i, segment := range segments {
		if segment == "issues" && i+1 < len(segments) {
			issueID = segments[i+1]
			break
		}
	}
	if issueID == "" {
		return false
	}

	issueURL := fmt.Sprintf("%s/issuepr/api/v1/issue/%s%%2F%s/issues/%s", v.GitCodeAPIBase, owner, repo, issueID)
	issueResp := get(ctx, v.Client, v.Logger, issueURL, headers)
	if issueResp == nil {
		return false
	}
	defer issueResp.Body.Close()
	return issueResp.StatusCode == http.StatusOK
}

func (v *IssueValidator) validateGitee(ctx context.Context, target string) bool {
	// Für Gitee reicht die Erreichbarkeit des Repos vor dem /issues-Segment.
	repoURL, _, _ := strings.Cut(target, "/issues")
	resp := get(ctx, v.Client, v.Logger, repoURL, nil)
	if resp == nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func splitPath(path string) []string {
	var segments []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
