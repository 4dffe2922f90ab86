package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the chat client.
type Config struct {
	ServerURL string `yaml:"server_url"`
	UploadURL string `yaml:"upload_url"`
	Username  string `yaml:"username"`
	RoomID    string `yaml:"room"`
	Moderator bool   `yaml:"moderator"`

	Token       string `yaml:"token"`
	TokenSecret string `yaml:"token_secret"`

	MaxAttempts    int           `yaml:"reconnect_attempts"`
	RetryDelay     time.Duration `yaml:"reconnect_delay"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	TypingIdle     time.Duration `yaml:"typing_idle"`
	TypingThrottle time.Duration `yaml:"typing_throttle"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	ReapInterval   time.Duration `yaml:"reap_interval"`

	ListenAddr string `yaml:"listen_addr"`
	APIToken   string `yaml:"api_token"`

	AMQPURL          string `yaml:"amqp_url"`
	AMQPExchange     string `yaml:"amqp_exchange"`
	NoticeRoutingKey string `yaml:"notice_routing_key"`

	DatabaseDSN  string `yaml:"database_dsn"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`
	DebugRoutes  bool   `yaml:"debug_routes"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ServerURL:        "ws://localhost:8080/ws",
		UploadURL:        "http://localhost:8080",
		MaxAttempts:      5,
		RetryDelay:       1000 * time.Millisecond,
		DialTimeout:      10000 * time.Millisecond,
		WriteTimeout:     10 * time.Second,
		TypingIdle:       1000 * time.Millisecond,
		TypingThrottle:   500 * time.Millisecond,
		JobTimeout:       30 * time.Second,
		ReapInterval:     time.Second,
		ListenAddr:       "127.0.0.1:8090",
		AMQPExchange:     "chat.events",
		NoticeRoutingKey: "chat.notice",
		ServiceName:      "chat-sync",
		Environment:      "dev",
	}
}

// Load builds the configuration from defaults, the YAML file named by
// --config or CHATSYNC_CONFIG, a .env file, the environment and args, in
// increasing precedence.
func Load(args []string) (Config, error) {
	cfg := Defaults()

	path, err := configPath(args)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	fs := flagSet(&cfg)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the client cannot run with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ServerURL) == "" {
		problems = append(problems, "server url is required")
	}
	if strings.TrimSpace(c.Username) == "" && c.Token == "" {
		problems = append(problems, "username or token is required")
	}
	if strings.TrimSpace(c.RoomID) == "" {
		problems = append(problems, "room is required")
	}
	if c.Token != "" && c.TokenSecret == "" {
		problems = append(problems, "token secret is required with a token")
	}
	if c.MaxAttempts <= 0 {
		problems = append(problems, "reconnect attempts must be positive")
	}
	for name, d := range map[string]time.Duration{
		"reconnect delay": c.RetryDelay,
		"dial timeout":    c.DialTimeout,
		"write timeout":   c.WriteTimeout,
		"typing idle":     c.TypingIdle,
		"job timeout":     c.JobTimeout,
		"reap interval":   c.ReapInterval,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if c.TypingThrottle < 0 {
		problems = append(problems, "typing throttle must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func configPath(args []string) (string, error) {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	path := fs.String("config", getEnv("CHATSYNC_CONFIG", ""), "")
	if err := fs.Parse(args); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return "", err
	}
	return *path, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func flagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("chat-sync", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "event stream URL")
	fs.StringVar(&cfg.UploadURL, "upload-url", cfg.UploadURL, "base URL of the media upload endpoints")
	fs.StringVarP(&cfg.Username, "username", "u", cfg.Username, "identity to join as")
	fs.StringVarP(&cfg.RoomID, "room", "r", cfg.RoomID, "room to join")
	fs.BoolVar(&cfg.Moderator, "moderator", cfg.Moderator, "act as a moderator when no token is given")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "signed identity token")
	fs.IntVar(&cfg.MaxAttempts, "reconnect-attempts", cfg.MaxAttempts, "reconnect attempts before giving up")
	fs.DurationVar(&cfg.RetryDelay, "reconnect-delay", cfg.RetryDelay, "delay between reconnect attempts")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "handshake timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "deadline for each outbound frame")
	fs.DurationVar(&cfg.TypingIdle, "typing-idle", cfg.TypingIdle, "inactivity before typing ends")
	fs.DurationVar(&cfg.TypingThrottle, "typing-throttle", cfg.TypingThrottle, "minimum spacing of typing announcements")
	fs.DurationVar(&cfg.JobTimeout, "job-timeout", cfg.JobTimeout, "time to wait for a job completion")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "control API address")
	fs.StringVar(&cfg.AMQPURL, "amqp-url", cfg.AMQPURL, "RabbitMQ URL for notices")
	fs.StringVar(&cfg.DatabaseDSN, "database-dsn", cfg.DatabaseDSN, "Postgres DSN for the episode journal")
	fs.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", cfg.OTLPEndpoint, "OTLP gRPC endpoint")
	fs.BoolVar(&cfg.DebugRoutes, "debug-routes", cfg.DebugRoutes, "expose debug routes")
	return fs
}

func applyEnv(cfg *Config) error {
	cfg.ServerURL = getEnv("CHATSYNC_SERVER_URL", cfg.ServerURL)
	cfg.UploadURL = getEnv("CHATSYNC_UPLOAD_URL", cfg.UploadURL)
	cfg.Username = getEnv("CHATSYNC_USERNAME", cfg.Username)
	cfg.RoomID = getEnv("CHATSYNC_ROOM", cfg.RoomID)
	cfg.Token = getEnv("CHATSYNC_TOKEN", cfg.Token)
	cfg.TokenSecret = getEnv("JWT_SECRET", cfg.TokenSecret)
	cfg.ListenAddr = getEnv("CHATSYNC_LISTEN_ADDR", cfg.ListenAddr)
	cfg.APIToken = getEnv("CHATSYNC_API_TOKEN", cfg.APIToken)
	cfg.AMQPURL = getEnv("RABBITMQ_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("RABBITMQ_EXCHANGE", cfg.AMQPExchange)
	cfg.NoticeRoutingKey = getEnv("CHATSYNC_NOTICE_ROUTING_KEY", cfg.NoticeRoutingKey)
	cfg.DatabaseDSN = getEnv("DATABASE_URL", cfg.DatabaseDSN)
	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = getEnv("APP_ENV", cfg.Environment)

	var err error
	if cfg.Moderator, err = envBool("CHATSYNC_MODERATOR", cfg.Moderator); err != nil {
		return err
	}
	if cfg.DebugRoutes, err = envBool("CHATSYNC_DEBUG_ROUTES", cfg.DebugRoutes); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("CHATSYNC_RECONNECT_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHATSYNC_RECONNECT_ATTEMPTS: %w", err)
		}
		cfg.MaxAttempts = n
	}
	for key, target := range map[string]*time.Duration{
		"CHATSYNC_RECONNECT_DELAY": &cfg.RetryDelay,
		"CHATSYNC_DIAL_TIMEOUT":    &cfg.DialTimeout,
		"CHATSYNC_WRITE_TIMEOUT":   &cfg.WriteTimeout,
		"CHATSYNC_TYPING_IDLE":     &cfg.TypingIdle,
		"CHATSYNC_TYPING_THROTTLE": &cfg.TypingThrottle,
		"CHATSYNC_JOB_TIMEOUT":     &cfg.JobTimeout,
		"CHATSYNC_REAP_INTERVAL":   &cfg.ReapInterval,
	} {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*target = d
		}
	}
	return nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
