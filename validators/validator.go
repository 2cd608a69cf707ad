package validators

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Validator prüft, ob ein Upstream-Item noch existiert und erreichbar ist.
// Jeder Netzwerkfehler gilt als ungültig (fail-closed); Aufrufer setzen daraufhin is_deleted.
type Validator interface {
	Validate(ctx context.Context, target string) bool
}

// ValidatorFunc adaptiert eine Funktion an das Validator-Interface.
type ValidatorFunc func(ctx context.Context, target string) bool

func (f ValidatorFunc) Validate(ctx context.Context, target string) bool {
	return f(ctx, target)
}

type uaTransport struct {
	base http.RoundTripper
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "Mozilla/5.0")
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewHTTPClient erstellt den Standard-Client für Validierungs-Requests.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: &uaTransport{},
	}
}

// get führt einen GET aus; transiente Fehler liefern nil statt eines Fehlers.
func get(ctx context.Context, client *http.Client, logger *zap.Logger, url string, headers map[string]string) *http.Response {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Error("Validierungs-Request konnte nicht erstellt werden", zap.String("url", url), zap.Error(err))
		return nil
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Error("Validierungs-Request fehlgeschlagen", zap.String("url", url), zap.Error(err))
		return nil
	}
	return resp
}
