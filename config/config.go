package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"video-relay/constant"
)

type Config struct {
	App        App
	Server     Server
	Generation Generation
	Providers  Providers
	Queue      *RabbitMQ
	MinIO      MinIO
	// Storage is nil when no object storage endpoint is configured.
	Storage *minio.Client
}

type App struct {
	Environment string
	Name        string
}

type Server struct {
	HttpPort  string
	Workers   int
	StaticDir string
}

type Generation struct {
	MaxPromptLength int
	VideoTimeout    time.Duration
	Retention       time.Duration
	ReapInterval    time.Duration
	MaxRecords      int
	Dispatcher      constant.DispatcherKind
}

type Providers struct {
	LumaAPIKey         string
	ReplicateAPIToken  string
	HuggingFaceAPIKey  string
	PollInterval       time.Duration
	MockStageDelay     time.Duration
	ReplicateModel     string
	HuggingFaceModel   string
	LumaBaseURL        string
	ReplicateBaseURL   string
	HuggingFaceBaseURL string
}

type RabbitMQ struct {
	Host         string
	Port         int
	User         string
	Pass         string
	ExchangeName string
	Kind         string
	QueueName    string
	RoutingKey   string
}

type MinIO struct {
	URL       string
	Bucket    string
	PublicURL string
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string][]string{
	"app.environment":                  {"APP_ENVIRONMENT"},
	"server.port":                      {"PORT", "SERVER_PORT"},
	"server.workers":                   {"SERVER_WORKERS"},
	"server.static_dir":                {"STATIC_DIR"},
	"generation.max_prompt_length":     {"MAX_PROMPT_LENGTH"},
	"generation.video_timeout":         {"VIDEO_TIMEOUT"},
	"generation.retention_hours":       {"GENERATION_RETENTION_HOURS"},
	"generation.reap_interval_minutes": {"GENERATION_REAP_INTERVAL_MINUTES"},
	"generation.max_records":           {"GENERATION_MAX_RECORDS"},
	"generation.dispatcher":            {"GENERATION_DISPATCHER"},
	"providers.luma.api_key":           {"LUMA_API_KEY"},
	"providers.luma.base_url":          {"LUMA_BASE_URL"},
	"providers.replicate.api_token":    {"REPLICATE_API_TOKEN"},
	"providers.replicate.base_url":     {"REPLICATE_BASE_URL"},
	"providers.replicate.model":        {"REPLICATE_MODEL_VERSION"},
	"providers.huggingface.api_key":    {"HUGGINGFACE_API_KEY"},
	"providers.huggingface.base_url":   {"HUGGINGFACE_BASE_URL"},
	"providers.huggingface.model":      {"HUGGINGFACE_MODEL"},
	"providers.poll_interval_seconds":  {"PROVIDER_POLL_INTERVAL"},
	"providers.mock.stage_delay_ms":    {"MOCK_STAGE_DELAY_MS"},
	"rabbitmq_host":                    {"RABBITMQ_HOST"},
	"rabbitmq_port":                    {"RABBITMQ_PORT"},
	"rabbitmq_user":                    {"RABBITMQ_USER"},
	"rabbitmq_pass":                    {"RABBITMQ_PASS"},
	"rabbitmq_kind":                    {"RABBITMQ_KIND"},
	"minio.url":                        {"MINIO_URL"},
	"minio.access_id":                  {"MINIO_ACCESS_ID"},
	"minio.secret_access_key":          {"MINIO_SECRET_ACCESS_KEY"},
	"minio.bucket":                     {"MINIO_BUCKET"},
	"minio.secure":                     {"MINIO_SECURE"},
	"minio.public_url":                 {"MINIO_PUBLIC_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", constant.EnvironmentDevelop.String())
	v.SetDefault("app.name", "video-relay")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.workers", 0)
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("generation.max_prompt_length", 500)
	v.SetDefault("generation.video_timeout", 180)
	v.SetDefault("generation.retention_hours", 24)
	v.SetDefault("generation.reap_interval_minutes", 0)
	v.SetDefault("generation.max_records", 0)
	v.SetDefault("generation.dispatcher", constant.DispatcherMemory)
	v.SetDefault("providers.poll_interval_seconds", 10)
	v.SetDefault("providers.mock.stage_delay_ms", 2000)
	v.SetDefault("rabbitmq_host", "localhost")
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("rabbitmq_user", "guest")
	v.SetDefault("rabbitmq_pass", "guest")
	v.SetDefault("rabbitmq_kind", "direct")
	v.SetDefault("minio.bucket", "generated-videos")
}

// Load reads config.yaml from path when present and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	dispatcher := constant.DispatcherKind(v.GetString("generation.dispatcher"))
	if dispatcher != constant.DispatcherMemory && dispatcher != constant.DispatcherRabbitMQ {
		return nil, fmt.Errorf("unknown generation.dispatcher %q", dispatcher)
	}

	cfg := &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			Name:        v.GetString("app.name"),
		},
		Server: Server{
			HttpPort:  v.GetString("server.port"),
			Workers:   v.GetInt("server.workers"),
			StaticDir: v.GetString("server.static_dir"),
		},
		Generation: Generation{
			MaxPromptLength: v.GetInt("generation.max_prompt_length"),
			VideoTimeout:    time.Duration(v.GetInt("generation.video_timeout")) * time.Second,
			Retention:       time.Duration(v.GetInt("generation.retention_hours")) * time.Hour,
			ReapInterval:    time.Duration(v.GetInt("generation.reap_interval_minutes")) * time.Minute,
			MaxRecords:      v.GetInt("generation.max_records"),
			Dispatcher:      dispatcher,
		},
		Providers: Providers{
			LumaAPIKey:         v.GetString("providers.luma.api_key"),
			LumaBaseURL:        v.GetString("providers.luma.base_url"),
			ReplicateAPIToken:  v.GetString("providers.replicate.api_token"),
			ReplicateBaseURL:   v.GetString("providers.replicate.base_url"),
			ReplicateModel:     v.GetString("providers.replicate.model"),
			HuggingFaceAPIKey:  v.GetString("providers.huggingface.api_key"),
			HuggingFaceBaseURL: v.GetString("providers.huggingface.base_url"),
			HuggingFaceModel:   v.GetString("providers.huggingface.model"),
			PollInterval:       time.Duration(v.GetInt("providers.poll_interval_seconds")) * time.Second,
			MockStageDelay:     time.Duration(v.GetInt("providers.mock.stage_delay_ms")) * time.Millisecond,
		},
		Queue: &RabbitMQ{
			Host:         v.GetString("rabbitmq_host"),
			Port:         v.GetInt("rabbitmq_port"),
			User:         v.GetString("rabbitmq_user"),
			Pass:         v.GetString("rabbitmq_pass"),
			Kind:         v.GetString("rabbitmq_kind"),
			ExchangeName: "generation_exchange",
			QueueName:    "generation_queue",
			RoutingKey:   "generation.request",
		},
		MinIO: MinIO{
			URL:       v.GetString("minio.url"),
			Bucket:    v.GetString("minio.bucket"),
			PublicURL: v.GetString("minio.public_url"),
		},
	}

	if cfg.MinIO.URL != "" {
		minioClient, err := minio.New(cfg.MinIO.URL, &minio.Options{
			Creds:  credentials.NewStaticV4(v.GetString("minio.access_id"), v.GetString("minio.secret_access_key"), ""),
			Secure: v.GetBool("minio.secure"),
		})
		if err != nil {
			return nil, err
		}
		cfg.Storage = minioClient
	}

	return cfg, nil
}
