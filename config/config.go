package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// bootstrap enthält die wenigen Werte, die vor dem Laden der YAML-Dateien bekannt sein müssen.
type bootstrap struct {
	BaseConfigPath   string `envconfig:"BASE_CONFIG" default:"config/conf.yaml"`
	SecretConfigPath string `envconfig:"SECRET_CONFIG" required:"true"`
	HTTPPort         string `envconfig:"HTTP_PORT" default:"8000"`
	APISecretKey     string `envconfig:"API_SECRET_KEY"`
}

// baseFile ist die nicht-geheime Basis-Konfiguration (Prompts, Modellname, Zeitplan).
type baseFile struct {
	LLMAPIURL    string                       `yaml:"llm_api_url"`
	LLMModel     string                       `yaml:"llm_model"`
	CronSchedule string                       `yaml:"cron_schedule"`
	PageSize     int                          `yaml:"page_size"`
	BatchSize    int                          `yaml:"batch_size"`
	Prompts      map[string]map[string]string `yaml:"prompts"`
}

// secretFile enthält Zugangsdaten und Endpunkte und wird getrennt ausgeliefert.
type secretFile struct {
	Env      string `yaml:"app_env"`
	Account  string `yaml:"account"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`

	DataAPI  string `yaml:"data_api"`
	OneIDAPI string `yaml:"one_id_api"`

	ForumAPI       string `yaml:"forum_api"`
	ForumDetailAPI string `yaml:"forum_detail_api"`

	DiscourseAPI       string `yaml:"discourse_api"`
	DiscourseDetailAPI string `yaml:"discourse_detail_api"`

	LLMAPIKey string `yaml:"llm_api_key"`

	Community   string `yaml:"community"`
	DWSName     string `yaml:"dws_name"`
	MailDWSName string `yaml:"mail_dws_name"`

	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`

	SnapshotS3Key    string `yaml:"snapshot_s3_key"`
	SnapshotS3Secret string `yaml:"snapshot_s3_secret"`
	SnapshotS3URL    string `yaml:"snapshot_s3_url"`
	SnapshotS3Region string `yaml:"snapshot_s3_region"`
	SnapshotS3Bucket string `yaml:"snapshot_s3_bucket"`
}

// Config bündelt alle Konfigurationsparameter und wird einmal beim Start erstellt.
type Config struct {
	Env          string
	HTTPPort     string
	APISecretKey string

	LLMAPIURL    string
	LLMAPIKey    string
	LLMModel     string
	CronSchedule string

	// Seitengröße der Upstream-Pagination und Batch-Größe des Upserters.
	PageSize  int
	BatchSize int

	// prompts[community][kind] → System-Prompt
	Prompts map[string]map[string]string

	Account  string
	Password string
	ClientID string

	DataAPI  string
	OneIDAPI string

	ForumAPI       string
	ForumDetailAPI string

	DiscourseAPI       string
	DiscourseDetailAPI string

	Community   string
	DWSName     string
	MailDWSName string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	SnapshotS3Key    string
	SnapshotS3Secret string
	SnapshotS3URL    string
	SnapshotS3Region string
	SnapshotS3Bucket string
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// DataAPIFor ersetzt den {community}-Platzhalter in der Analytics-API-URL.
func (c *Config) DataAPIFor(community string) string {
	return strings.ReplaceAll(c.DataAPI, "{community}", community)
}

// SystemPrompt liefert den System-Prompt für (community, kind); leerer String, wenn keiner hinterlegt ist.
func (c *Config) SystemPrompt(community, kind string) string {
	if byKind, ok := c.Prompts[community]; ok {
		return byKind[kind]
	}
	return ""
}

// SnapshotEnabled meldet, ob Roh-Snapshots nach S3 archiviert werden sollen.
func (c *Config) SnapshotEnabled() bool {
	return c.SnapshotS3Bucket != "" && c.SnapshotS3URL != ""
}

// Load lädt die Konfiguration: Bootstrap aus Umgebungsvariablen, danach beide YAML-Dateien.
// Fehlt SECRET_CONFIG, schlägt der Start sofort fehl.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var boot bootstrap
	if err := envconfig.Process("", &boot); err != nil {
		return nil, fmt.Errorf("config bootstrap: %w", err)
	}

	var base baseFile
	if err := readYAML(boot.BaseConfigPath, &base); err != nil {
		return nil, fmt.Errorf("base config %s: %w", boot.BaseConfigPath, err)
	}

	var secret secretFile
	if err := readYAML(boot.SecretConfigPath, &secret); err != nil {
		return nil, fmt.Errorf("secret config %s: %w", boot.SecretConfigPath, err)
	}

	cfg := &Config{
		Env:          secret.Env,
		HTTPPort:     boot.HTTPPort,
		APISecretKey: boot.APISecretKey,

		LLMAPIURL:    base.LLMAPIURL,
		LLMAPIKey:    secret.LLMAPIKey,
		LLMModel:     base.LLMModel,
		CronSchedule: base.CronSchedule,
		PageSize:     base.PageSize,
		BatchSize:    base.BatchSize,
		Prompts:      base.Prompts,

		Account:  secret.Account,
		Password: secret.Password,
		ClientID: secret.ClientID,

		DataAPI:  secret.DataAPI,
		OneIDAPI: secret.OneIDAPI,

		ForumAPI:       secret.ForumAPI,
		ForumDetailAPI: secret.ForumDetailAPI,

		DiscourseAPI:       secret.DiscourseAPI,
		DiscourseDetailAPI: secret.DiscourseDetailAPI,

		Community:   secret.Community,
		DWSName:     secret.DWSName,
		MailDWSName: secret.MailDWSName,

		DBHost:     secret.DBHost,
		DBPort:     secret.DBPort,
		DBUser:     secret.DBUser,
		DBPassword: secret.DBPassword,
		DBName:     secret.DBName,

		SnapshotS3Key:    secret.SnapshotS3Key,
		SnapshotS3Secret: secret.SnapshotS3Secret,
		SnapshotS3URL:    secret.SnapshotS3URL,
		SnapshotS3Region: secret.SnapshotS3Region,
		SnapshotS3Bucket: secret.SnapshotS3Bucket,
	}

	if cfg.CronSchedule == "" {
		cfg.CronSchedule = "0 2 * * 6" // samstags 02:00, nach dem Freitag-Watermark
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, out)
}
