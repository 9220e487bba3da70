package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sweepfire",
		Short:         "Sweep concurrency levels against the image-processing API",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Target and credentials; these override API_* variables
	flags.String("scheme", DefaultScheme, "URL scheme of the API (http or https)")
	flags.String("host", "", "API host (overrides API_HOST)")
	flags.Int("port", 0, "API port (overrides API_PORT)")
	flags.String("username", "", "Login username (overrides API_USERNAME)")
	flags.String("password", "", "Login password (overrides API_PASSWORD)")
	flags.String("token", "", "Pre-issued bearer token; skips the login call (overrides API_TOKEN)")
	flags.String("login-path", DefaultLoginPath, "Path of the identity endpoint")
	flags.String("process-path", DefaultProcessPath, "Path of the image-processing endpoint")
	flags.StringSlice("token-path", nil, "JSON path of the token in the login response (repeatable)")
	flags.Duration("login-timeout", DefaultLoginTimeout, "Timeout for the login call")

	// Request flags
	flags.String("image", "", "Path of the test image to upload (overrides TEST_IMAGE_PATH)")
	flags.String("file-field", "file", "Multipart field name carrying the image")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("answer-path", DefaultAnswerPath, "JSON path of the answer checked against --degraded-answer")
	flags.String("degraded-answer", DefaultDegradedAnswer, "A 2xx answer equal to this text counts as a server error (empty disables)")

	// Sweep flags
	flags.IntSlice("levels", DefaultLevels, "Concurrency levels to sweep, in order")
	flags.IntP("requests", "n", DefaultRequests, "Requests per concurrency level")
	flags.Duration("timeout", DefaultRequestTimeout, "Per-request timeout (overrides REQUEST_TIMEOUT)")
	flags.IntP("rate", "r", 0, "Requests per second limit within a level (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Spacing of paced dispatches: uniform or poisson")
	flags.Duration("cooldown", 0, "Pause between levels")
	flags.Int("auth-attempts", 1, "Login attempts before the sweep is aborted")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("yaml-output", false, "Emit YAML formatted output")
	flags.String("results-file", "", "Append a results log to this file")
	flags.BoolP("quiet", "q", false, "Disable live progress output")
	flags.StringSlice("threshold", nil, "Per-level thresholds (repeatable, e.g., 'http_req_duration:p95 < 500')")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("env-file", "", "Path to a dotenv file (defaults to ./.env when present)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.String("tracing-service-name", "", "Service name reported in spans")
	flags.Float64("tracing-sample-rate", 0, "Trace sampling ratio between 0 and 1 (0 samples everything)")
	flags.Bool("tracing-propagate", true, "Inject W3C trace headers into uploads")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides copies every flag the user set onto cfg.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := map[string]*string{
		"scheme":          &cfg.Scheme,
		"host":            &cfg.Host,
		"username":        &cfg.Username,
		"password":        &cfg.Password,
		"token":           &cfg.Token,
		"login-path":      &cfg.LoginPath,
		"process-path":    &cfg.ProcessPath,
		"image":           &cfg.ImagePath,
		"file-field":      &cfg.FileField,
		"degraded-answer": &cfg.DegradedAnswer,
		"answer-path":     &cfg.AnswerPath,
		"results-file":    &cfg.ResultsFile,
		"log-level":       &cfg.LogLevel,
		"metrics-addr":    &cfg.MetricsAddr,

		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	}
	for name, dst := range stringFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}

	intFlags := map[string]*int{
		"port":          &cfg.Port,
		"requests":      &cfg.Requests,
		"rate":          &cfg.Rate,
		"auth-attempts": &cfg.AuthAttempts,
	}
	for name, dst := range intFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	durationFlags := map[string]*time.Duration{
		"timeout":       &cfg.Timeout,
		"login-timeout": &cfg.LoginTimeout,
		"cooldown":      &cfg.Cooldown,
	}
	for name, dst := range durationFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	boolFlags := map[string]*bool{
		"json-output":      &cfg.JSONOutput,
		"yaml-output":      &cfg.YAMLOutput,
		"quiet":            &cfg.Quiet,
		"tracing-insecure": &cfg.Tracing.Insecure,
	}
	for name, dst := range boolFlags {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("levels") {
		val, err := fs.GetIntSlice("levels")
		if err != nil {
			return err
		}
		cfg.Levels = val
	}
	if fs.Changed("token-path") {
		val, err := fs.GetStringSlice("token-path")
		if err != nil {
			return err
		}
		cfg.TokenPaths = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = append(cfg.Thresholds, val...)
	}
	if fs.Changed("header") {
		values, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, raw := range values {
			key, value, err := parseHeader(raw)
			if err != nil {
				return err
			}
			cfg.Headers[key] = value
		}
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	return nil
}

func parseHeader(raw string) (string, string, error) {
	key, value, found := strings.Cut(raw, "=")
	if !found {
		key, value, found = strings.Cut(raw, ":")
	}
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", fmt.Errorf("invalid header %q: expected key=value", raw)
	}
	return http.CanonicalHeaderKey(key), strings.TrimSpace(value), nil
}
