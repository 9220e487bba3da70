package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/sweepfire/internal/extractor"
)

const (
	DefaultScheme         = "http"
	DefaultLoginPath      = "/mobile/auth/login"
	DefaultProcessPath    = "/mobile/glaucoma-screening/process"
	DefaultRequests       = 100
	DefaultRequestTimeout = 120 * time.Second
	DefaultLoginTimeout   = 30 * time.Second
	DefaultDegradedAnswer = "We are resolving some issues. Please try again in a few minutes."
	DefaultLogLevel       = "info"
	DefaultAnswerPath     = "answer"
)

// ArrivalModel selects how paced dispatches are spaced within a level.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// DefaultLevels is the concurrency sweep used when none is configured.
var DefaultLevels = []int{1, 5, 10, 25, 50, 75, 100}

// Config is the resolved configuration of one sweep.
type Config struct {
	Scheme   string `mapstructure:"scheme"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Token skips the login call when set.
	Token string `mapstructure:"token"`

	LoginPath      string            `mapstructure:"login_path"`
	ProcessPath    string            `mapstructure:"process_path"`
	TokenPaths     []string          `mapstructure:"token_paths"`
	LoginTimeout   time.Duration     `mapstructure:"login_timeout"`
	ImagePath      string            `mapstructure:"image"`
	FileField      string            `mapstructure:"file_field"`
	Headers        map[string]string `mapstructure:"headers"`
	DegradedAnswer string            `mapstructure:"degraded_answer"`
	AnswerPath     string            `mapstructure:"answer_path"`

	Levels       []int         `mapstructure:"levels"`
	Requests     int           `mapstructure:"requests"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Rate         int           `mapstructure:"rate"`
	Arrival      ArrivalModel  `mapstructure:"arrival_model"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
	AuthAttempts int           `mapstructure:"auth_attempts"`

	JSONOutput  bool     `mapstructure:"json_output"`
	YAMLOutput  bool     `mapstructure:"yaml_output"`
	ResultsFile string   `mapstructure:"results_file"`
	Quiet       bool     `mapstructure:"quiet"`
	Thresholds  []string `mapstructure:"thresholds"`
	LogLevel    string   `mapstructure:"log_level"`
	MetricsAddr string   `mapstructure:"metrics_addr"`

	Tracing TracingConfig `mapstructure:"tracing"`

	ConfigFile string `mapstructure:"-"`
	EnvFile    string `mapstructure:"-"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	// Propagate defaults to true when tracing is enabled.
	Propagate *bool `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether trace context is injected into uploads.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// BaseURL is scheme://host:port of the API under test.
func (c Config) BaseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	host := c.Host
	if c.Port > 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}
	u := url.URL{Scheme: scheme, Host: host}
	return u.String()
}

// LoginURL is the identity endpoint.
func (c Config) LoginURL() string {
	return c.BaseURL() + withSlash(c.LoginPath, DefaultLoginPath)
}

// TargetURL is the image-processing endpoint every request hits.
func (c Config) TargetURL() string {
	return c.BaseURL() + withSlash(c.ProcessPath, DefaultProcessPath)
}

// UsesStaticToken reports whether a pre-issued token replaces the login call.
func (c Config) UsesStaticToken() bool {
	return strings.TrimSpace(c.Token) != ""
}

func withSlash(path, fallback string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = fallback
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Host) == "" {
		issues = append(issues, "host is required (set API_HOST or --host)")
	} else if strings.ContainsAny(c.Host, "/?#@ ") {
		issues = append(issues, fmt.Sprintf("host %q must be a bare host name", c.Host))
	}
	if c.Port < 0 || c.Port > 65535 {
		issues = append(issues, fmt.Sprintf("port %d out of range", c.Port))
	}
	switch strings.ToLower(c.Scheme) {
	case "", "http", "https":
	default:
		issues = append(issues, fmt.Sprintf("scheme must be http or https, got %q", c.Scheme))
	}

	if !c.UsesStaticToken() {
		if strings.TrimSpace(c.Username) == "" {
			issues = append(issues, "username is required (set API_USERNAME or --username) unless a token is provided")
		}
		if c.Password == "" {
			issues = append(issues, "password is required (set API_PASSWORD or --password) unless a token is provided")
		}
	}
	if _, err := extractor.ParseAll(c.TokenPaths); err != nil {
		issues = append(issues, fmt.Sprintf("token paths: %v", err))
	}
	if strings.TrimSpace(c.ImagePath) == "" {
		issues = append(issues, "image is required (set TEST_IMAGE_PATH or --image)")
	}

	if len(c.Levels) == 0 {
		issues = append(issues, "at least one concurrency level is required")
	}
	for idx, level := range c.Levels {
		if level < 1 {
			issues = append(issues, fmt.Sprintf("levels[%d]: concurrency must be >= 1, got %d", idx, level))
		}
	}
	if c.Requests < 0 {
		issues = append(issues, "requests must be >= 0")
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if c.LoginTimeout < 0 {
		issues = append(issues, "login timeout must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	switch c.Arrival {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model must be uniform or poisson, got %q", c.Arrival))
	}
	if c.Cooldown < 0 {
		issues = append(issues, "cooldown must be >= 0")
	}
	if c.AuthAttempts < 1 {
		issues = append(issues, "auth attempts must be >= 1")
	}
	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json-output and yaml-output are mutually exclusive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing sample rate must be between 0 and 1")
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", c.Tracing.Protocol))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings lists settings that are valid but worth confirming.
func (c Config) Warnings() []string {
	var warnings []string
	for _, level := range c.Levels {
		if level > 500 {
			warnings = append(warnings, fmt.Sprintf("high concurrency level configured (%d workers); ensure you have authorization to test the target system", level))
			break
		}
	}
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("high rate limit configured (%d RPS); ensure you have authorization to test the target system", c.Rate))
	}
	if strings.EqualFold(c.Scheme, "http") && !c.UsesStaticToken() && !isLoopback(c.Host) {
		warnings = append(warnings, "credentials will be sent over plain HTTP")
	}
	return warnings
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
