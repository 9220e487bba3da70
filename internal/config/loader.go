package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader resolves a Config from defaults, the environment, an optional
// config file and command-line flags, in increasing order of precedence.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

const defaultEnvFile = ".env"

// Environment variables read by the loader.
const (
	EnvScheme   = "API_SCHEME"
	EnvHost     = "API_HOST"
	EnvPort     = "API_PORT"
	EnvUsername = "API_USERNAME"
	EnvPassword = "API_PASSWORD"
	EnvToken    = "API_TOKEN"
	EnvImage    = "TEST_IMAGE_PATH"
	EnvTimeout  = "REQUEST_TIMEOUT"
)

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses args and produces a Config. It does not validate it.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	cfg := defaultConfig()

	envFile, err := flagSet.GetString("env-file")
	if err != nil {
		return nil, err
	}
	if err := applyEnvironment(cfg, envFile); err != nil {
		return nil, err
	}

	configPath, err := flagSet.GetString("config")
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		cfg.ConfigFile = configPath
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Scheme = strings.ToLower(strings.TrimSpace(cfg.Scheme))
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.ImagePath = strings.TrimSpace(cfg.ImagePath)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Scheme:         DefaultScheme,
		LoginPath:      DefaultLoginPath,
		ProcessPath:    DefaultProcessPath,
		LoginTimeout:   DefaultLoginTimeout,
		Headers:        map[string]string{},
		DegradedAnswer: DefaultDegradedAnswer,
		AnswerPath:     DefaultAnswerPath,
		Levels:         append([]int(nil), DefaultLevels...),
		Requests:       DefaultRequests,
		Arrival:        ArrivalModelUniform,
		Timeout:        DefaultRequestTimeout,
		AuthAttempts:   1,
		LogLevel:       DefaultLogLevel,
	}
}

// applyEnvironment reads the API_* variables from the process environment,
// falling back to a dotenv file. Process variables win over the file.
func applyEnvironment(cfg *Config, envFile string) error {
	env := viper.New()
	env.AutomaticEnv()

	path := strings.TrimSpace(envFile)
	if path == "" {
		if info, err := os.Stat(defaultEnvFile); err == nil && !info.IsDir() {
			path = defaultEnvFile
		}
	}
	if path != "" {
		env.SetConfigFile(path)
		env.SetConfigType("env")
		if err := env.ReadInConfig(); err != nil {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		cfg.EnvFile = path
	}

	if v := env.GetString(EnvScheme); v != "" {
		cfg.Scheme = v
	}
	if v := env.GetString(EnvHost); v != "" {
		cfg.Host = v
	}
	if v := env.GetString(EnvPort); v != "" {
		port, err := asInt(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	if v := env.GetString(EnvUsername); v != "" {
		cfg.Username = v
	}
	if v := env.GetString(EnvPassword); v != "" {
		cfg.Password = v
	}
	if v := env.GetString(EnvToken); v != "" {
		cfg.Token = v
	}
	if v := env.GetString(EnvImage); v != "" {
		cfg.ImagePath = v
	}
	if v := env.GetString(EnvTimeout); v != "" {
		timeout, err := asSeconds(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Timeout = timeout
	}
	return nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringFields := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.Scheme, []string{"scheme"}},
		{&cfg.Host, []string{"host"}},
		{&cfg.Username, []string{"username"}},
		{&cfg.Password, []string{"password"}},
		{&cfg.Token, []string{"token"}},
		{&cfg.LoginPath, []string{"login_path", "loginpath", "login-path"}},
		{&cfg.ProcessPath, []string{"process_path", "processpath", "process-path"}},
		{&cfg.ImagePath, []string{"image", "image_path", "imagepath"}},
		{&cfg.FileField, []string{"file_field", "filefield", "file-field"}},
		{&cfg.DegradedAnswer, []string{"degraded_answer", "degradedanswer", "degraded-answer"}},
		{&cfg.AnswerPath, []string{"answer_path", "answerpath", "answer-path"}},
		{&cfg.ResultsFile, []string{"results_file", "resultsfile", "results-file"}},
		{&cfg.LogLevel, []string{"log_level", "loglevel", "log-level"}},
		{&cfg.MetricsAddr, []string{"metrics_addr", "metricsaddr", "metrics-addr"}},
	}
	for _, s := range stringFields {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "arrival_model", "arrivalmodel", "arrival-model", "arrival"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrival_model: %w", err)
		}
		cfg.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}

	intFields := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Port, []string{"port"}},
		{&cfg.Requests, []string{"requests"}},
		{&cfg.Rate, []string{"rate"}},
		{&cfg.AuthAttempts, []string{"auth_attempts", "authattempts", "auth-attempts"}},
	}
	for _, i := range intFields {
		if raw, ok := lookupSetting(settings, i.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", i.keys[0], err)
			}
			*i.dst = val
		}
	}

	durationFields := []struct {
		dst  *time.Duration
		keys []string
	}{
		{&cfg.Timeout, []string{"timeout"}},
		{&cfg.LoginTimeout, []string{"login_timeout", "logintimeout", "login-timeout"}},
		{&cfg.Cooldown, []string{"cooldown"}},
	}
	for _, d := range durationFields {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.keys[0], err)
			}
			*d.dst = val
		}
	}

	boolFields := []struct {
		dst  *bool
		keys []string
	}{
		{&cfg.JSONOutput, []string{"json_output", "jsonoutput", "json-output"}},
		{&cfg.YAMLOutput, []string{"yaml_output", "yamloutput", "yaml-output"}},
		{&cfg.Quiet, []string{"quiet"}},
	}
	for _, b := range boolFields {
		if raw, ok := lookupSetting(settings, b.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", b.keys[0], err)
			}
			*b.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "levels"); ok {
		levels, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("levels: %w", err)
		}
		cfg.Levels = levels
	}

	if raw, ok := lookupSetting(settings, "token_paths", "tokenpaths", "token-paths"); ok {
		paths, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("token_paths: %w", err)
		}
		cfg.TokenPaths = paths
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyTracingSettings(tc *TracingConfig, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}
	if v, ok := lookupSetting(settings, "endpoint"); ok {
		if tc.Endpoint, err = asString(v); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}
	if v, ok := lookupSetting(settings, "protocol"); ok {
		if tc.Protocol, err = asString(v); err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
	}
	if v, ok := lookupSetting(settings, "service_name", "servicename", "service-name"); ok {
		if tc.ServiceName, err = asString(v); err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
	}
	if v, ok := lookupSetting(settings, "insecure"); ok {
		if tc.Insecure, err = asBool(v); err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
	}
	if v, ok := lookupSetting(settings, "sample_rate", "samplerate", "sample-rate"); ok {
		if tc.SampleRate, err = asFloat64(v); err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
	}
	if v, ok := lookupSetting(settings, "propagate"); ok {
		propagate, err := asBool(v)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &propagate
	}
	return nil
}
