package collectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// TimeLayout ist das kanonische Zeitformat für alle RawItem-Zeitstempel.
const TimeLayout = "2006-01-02 15:04:05"

// PageDelay drosselt aufeinanderfolgende Seiten-Requests, damit Upstream uns nicht sperrt.
const PageDelay = 500 * time.Millisecond

// RawItem ist das rohe Zwischenformat eines Collectors, bevor der Cleaner es normalisiert.
type RawItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	State     string `json:"state"`
	Closed    bool   `json:"closed"`
	History   string `json:"history"`
}

// Complete meldet, ob die Pflichtfelder id, title und body vorhanden sind.
func (r RawItem) Complete() bool {
	return r.ID != "" && r.Title != "" && r.Body != ""
}

// Collector ist das Interface, das jede Quelle (Issue, Forum, Mail) implementieren muss.
type Collector interface {
	// Collect holt alle Items, die seit dem Watermark erstellt bzw. aktualisiert wurden.
	Collect(ctx context.Context, watermark time.Time) ([]RawItem, error)

	// SourceType gibt die Quellenart zurück (issue, forum oder mail).
	SourceType() string
}

// CustomTransport fügt jeder Anfrage einen Browser-User-Agent und optionale Header hinzu.
type CustomTransport struct {
	Transport http.RoundTripper
	Headers   map[string]string
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36")
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	base := t.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewHTTPClient erstellt den Standard-Client für alle Collector-Requests.
func NewHTTPClient(headers map[string]string) *http.Client {
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: &CustomTransport{Headers: headers},
	}
}

// DoJSON führt einen Request aus und dekodiert die JSON-Antwort in out.
// Transiente Fehler (Timeout, Verbindungsfehler, Non-2xx) liefern false statt eines Fehlers;
// der Aufrufer überspringt dann diese Seite.
func DoJSON(ctx context.Context, client *http.Client, logger *zap.Logger, method, url string, headers map[string]string, body any, out any) bool {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			logger.Error("Request-Body konnte nicht serialisiert werden", zap.Error(err))
			return false
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		logger.Error("Request konnte nicht erstellt werden", zap.String("url", url), zap.Error(err))
		return false
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("Request fehlgeschlagen", zap.String("url", url), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Error("Upstream hat Non-2xx-Status geliefert",
			zap.String("url", url), zap.Int("status", resp.StatusCode))
		return false
	}

	if out == nil {
		return true
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		logger.Error("JSON-Antwort konnte nicht dekodiert werden", zap.String("url", url), zap.Error(err))
		return false
	}
	return true
}

// SessionAuthenticator holt ein Session-Token über den OneID-Login-Call.
// Wird als explizite Capability an Collectors gereicht, die ein Token brauchen.
type SessionAuthenticator struct {
	LoginURL string
	Account  string
	Password string
	ClientID string
	Client   *http.Client
	Logger   *zap.Logger
}

// Login führt den Login-Call aus und gibt das Token aus dem _U_T_-Cookie zurück.
func (a *SessionAuthenticator) Login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"permission":  "sigRead",
		"account":     a.Account,
		"client_id":   a.ClientID,
		"accept_term": 0,
		"password":    a.Password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.LoginURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		a.Logger.Error("Login fehlgeschlagen", zap.Error(err))
		return "", fmt.Errorf("oneid login: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "_U_T_" && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("oneid login: kein Session-Token in der Antwort")
}
