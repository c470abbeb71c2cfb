package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/member-import/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory. When none of
// them exist there, the directory holding go.mod is tried instead so that
// tests running inside package directories pick up the repo-level files.
func LoadEnv(envFiles []string) (int, error) {
	existingFiles := existing(envFiles, "")
	if len(existingFiles) == 0 {
		if root, ok := moduleRoot(); ok {
			existingFiles = existing(envFiles, root)
		}
	}
	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

func existing(files []string, dir string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func moduleRoot() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for dir := wd; ; {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"member_import"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"member-import"`
}

type PrometheusOptions struct {
	// Textfile is written once at the end of a run, for node_exporter's textfile collector.
	Textfile string `env:"PROMETHEUS_TEXTFILE"`
}

type ImportOptions struct {
	Backend           string `env:"IMPORT_BACKEND" envDefault:"memory"` // memory or postgres
	CheckpointFile    string `env:"IMPORT_CHECKPOINT_FILE" envDefault:"tmp/member-import.continue"`
	CheckpointBackend string `env:"IMPORT_CHECKPOINT_BACKEND" envDefault:"file"` // file or redis
	CheckpointKey     string `env:"IMPORT_CHECKPOINT_KEY" envDefault:"member-import:continue"`
	GroupsFile        string `env:"IMPORT_GROUPS_FILE"`
	InputEncoding     string `env:"IMPORT_INPUT_ENCODING" envDefault:"auto"`
}

// Validate checks the import configuration for errors
func (o *ImportOptions) Validate(redisURL string) error {
	o.Backend = strings.ToLower(strings.TrimSpace(o.Backend))
	switch o.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid IMPORT_BACKEND=%q (expected memory|postgres)", o.Backend)
	}

	o.CheckpointBackend = strings.ToLower(strings.TrimSpace(o.CheckpointBackend))
	switch o.CheckpointBackend {
	case "file":
	case "redis":
		if strings.TrimSpace(redisURL) == "" {
			return fmt.Errorf("IMPORT_CHECKPOINT_BACKEND=redis requires REDIS_URL")
		}
		if strings.TrimSpace(o.CheckpointKey) == "" {
			return fmt.Errorf("IMPORT_CHECKPOINT_BACKEND=redis requires IMPORT_CHECKPOINT_KEY")
		}
	default:
		return fmt.Errorf("invalid IMPORT_CHECKPOINT_BACKEND=%q (expected file|redis)", o.CheckpointBackend)
	}

	o.InputEncoding = strings.ToLower(strings.TrimSpace(o.InputEncoding))
	switch o.InputEncoding {
	case "", "auto", "utf-8", "utf8", "windows-1252", "latin1", "iso-8859-1":
	default:
		return fmt.Errorf("invalid IMPORT_INPUT_ENCODING=%q (expected auto|utf-8|windows-1252|latin1)", o.InputEncoding)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Import        ImportOptions

	RedisURL         string `env:"REDIS_URL"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath          string `env:"LOG_PATH"`

	logFile io.Closer
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	return c.parse()
}

func (c *Configuration) parse() error {
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Import.Validate(c.RedisURL); err != nil {
		return fmt.Errorf("import configuration error: %w", err)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
