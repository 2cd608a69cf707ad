package validators

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// deletedTopicCode ist der backend-spezifische "nicht gefunden"-Fehlercode des Ascend-Forums.
const deletedTopicCode = "HD.65120026"

// HTTPValidator akzeptiert jedes Ziel, das mit 2xx antwortet (Discourse-basierte Foren).
type HTTPValidator struct {
	Client *http.Client
	Logger *zap.Logger
}

// NewHTTPValidator erstellt einen einfachen Erreichbarkeits-Validator.
func NewHTTPValidator(client *http.Client, logger *zap.Logger) *HTTPValidator {
	if client == nil {
		client = NewHTTPClient()
	}
	return &HTTPValidator{Client: client, Logger: logger}
}

func (v *HTTPValidator) Validate(ctx context.Context, target string) bool {
	resp := get(ctx, v.Client, v.Logger, target, nil)
	if resp == nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// AscendValidator prüft Topics des Ascend-Forums über die Detail-API.
// Die Topic-ID steckt in URLs der Form .../thread-<id>-1-1.html.
type AscendValidator struct {
	Client    *http.Client
	Logger    *zap.Logger
	DetailAPI string
}

// NewAscendValidator erstellt einen Validator für das Ascend-Forum.
func NewAscendValidator(client *http.Client, logger *zap.Logger, detailAPI string) *AscendValidator {
	if client == nil {
		client = NewHTTPClient()
	}
	return &AscendValidator{Client: client, Logger: logger, DetailAPI: detailAPI}
}

func (v *AscendValidator) Validate(ctx context.Context, target string) bool {
	topicID, ok := topicIDFromURL(target)
	if !ok {
		v.Logger.Error("Topic-ID konnte nicht aus der URL extrahiert werden", zap.String("url", target))
		return false
	}

	resp := get(ctx, v.Client, v.Logger, fmt.Sprintf("%s?topicId=%s", v.DetailAPI, topicID), nil)
	if resp == nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var payload struct {
		Data struct {
			ErrorCode string `json:"error_code"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		v.Logger.Error("Forum-Detail-Antwort konnte nicht dekodiert werden", zap.Error(err))
		return false
	}
	return payload.Data.ErrorCode != deletedTopicCode
}

// topicIDFromURL extrahiert die ID aus "thread-<id>-1-1.html"-Permalinks.
func topicIDFromURL(target string) (string, bool) {
	_, rest, found := strings.Cut(target, "thread-")
	if !found {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "-")
	id, _, _ = strings.Cut(id, "/")
	return id, id != ""
}

// MindSporeValidator leitet je nach Host auf den Discourse- oder den Ascend-Validator um.
type MindSporeValidator struct {
	Discourse *HTTPValidator
	Ascend    *AscendValidator
}

func (v *MindSporeValidator) Validate(ctx context.Context, target string) bool {
	if strings.Contains(target, "discuss.mindspore.cn") {
		return v.Discourse.Validate(ctx, target)
	}
	return v.Ascend.Validate(ctx, target)
}

// MailValidator geht davon aus, dass Mail-Threads nicht gelöscht werden.
// Bewusste Vereinfachung, keine Garantie für die Existenz des Inhalts.
type MailValidator struct{}

func (MailValidator) Validate(ctx context.Context, target string) bool {
	return true
}

// ForForum liefert den Forum-Validator der Community; nil, wenn die Community kein Forum hat.
func ForForum(community string, client *http.Client, logger *zap.Logger, ascendDetailAPI string) (Validator, error) {
	switch community {
	case "openubmc", "openeuler":
		return NewHTTPValidator(client, logger), nil
	case "cann":
		return NewAscendValidator(client, logger, ascendDetailAPI), nil
	case "mindspore":
		return &MindSporeValidator{
			Discourse: NewHTTPValidator(client, logger),
			Ascend:    NewAscendValidator(client, logger, ascendDetailAPI),
		}, nil
	case "opengauss":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported community: %s", community)
	}
}
