package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"rtmpt.io/tunnel/v1/rtmptlib/connection/tunnel"
	"rtmpt.io/tunnel/v1/rtmptlib/envconfig"
)

const (
	defaultHttpPort  = 80
	defaultHttpsPort = 443

	configFlag = "config"
)

type settings struct {
	Host         string
	Port         int
	Secured      bool
	HonorHint    bool
	PollInterval time.Duration
	LogLevel     string
	LogFile      string
	Reconnect    bool
}

// setting ties a flag to the environment variable and config key that can supply it
type setting struct {
	name    string
	envVar  string
	comment string
}

var knownSettings = []setting{
	{"host", "RTMPT_HOST", "tunnel server host name"},
	{"port", "RTMPT_PORT", "tunnel server port, 0 picks 80 or 443"},
	{"secured", "RTMPT_SECURED", "use https"},
	{"honorHint", "RTMPT_HONOR_HINT", "wait as long as the server's interval hint asks between empty polls"},
	{"pollInterval", "RTMPT_POLL_INTERVAL", "delay between empty polls"},
	{"logLevel", "RTMPT_LOG_LEVEL", "one of trace, debug, info, warn, error, disabled"},
	{"logFile", "RTMPT_LOG_FILE", "optional rotated log file"},
	{"reconnect", "RTMPT_RECONNECT", "keep retrying the dial with exponential backoff"},
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("rtmpt-probe", flag.ContinueOnError)

	fs.String("host", "", "Tunnel server host name")
	fs.Int("port", 0, "Tunnel server port (default 80, or 443 with -secured)")
	fs.Bool("secured", false, "Use https instead of http")
	fs.Bool("honorHint", false, "Derive the delay between empty polls from the server's interval hint")
	fs.Duration("pollInterval", tunnel.DefaultPollInterval, "Delay between empty polls")
	fs.String("logLevel", "info", "The log level to use -- must be one of 'disabled', 'trace', 'debug', 'info', 'warn', 'error'")
	fs.String("logFile", "", "Also write logs to this file, rotated")
	fs.Bool("reconnect", false, "Retry the initial dial with exponential backoff")
	fs.String(configFlag, "", "YAML config file holding defaults for every other flag")

	return fs
}

// loadSettings resolves every setting with the precedence flag > environment > config file > default
func loadSettings(args []string) (*settings, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	var config envconfig.EnvConfig
	if path := fs.Lookup(configFlag).Value.String(); path != "" {
		yamlConfig, err := envconfig.NewYamlEnvConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config %s: %w", path, err)
		}
		config = yamlConfig
	}

	values := map[string]string{}
	for _, s := range knownSettings {
		f := fs.Lookup(s.name)

		if explicit[s.name] {
			values[s.name] = f.Value.String()
			continue
		}

		value, err := fallback(config, s, f.DefValue)
		if err != nil {
			return nil, err
		}
		values[s.name] = value
	}

	return parseSettings(values)
}

func fallback(config envconfig.EnvConfig, s setting, defaultValue string) (string, error) {
	if config == nil {
		if value, ok := os.LookupEnv(s.envVar); ok {
			return value, nil
		}
		return defaultValue, nil
	}

	entry, err := config.Get(s.name)

	var keyErr *envconfig.KeyError
	if errors.As(err, &keyErr) {
		// first time we've seen this key, record the default
		return config.Set(envconfig.Entry{
			Id:      s.name,
			Value:   defaultValue,
			Comment: s.comment,
			EnvVar:  s.envVar,
		})
	} else if err != nil {
		return "", fmt.Errorf("failed to read %s from config: %w", s.name, err)
	}

	// a hand-written entry may name no variable, or the wrong one; ours still wins
	if entry.EnvVar != s.envVar {
		entry.EnvVar = s.envVar
		if entry.Comment == "" {
			entry.Comment = s.comment
		}
		return config.Set(entry)
	}

	return entry.Value, nil
}

func parseSettings(values map[string]string) (*settings, error) {
	var err error
	s := &settings{
		Host:     values["host"],
		LogLevel: values["logLevel"],
		LogFile:  values["logFile"],
	}

	if s.Port, err = strconv.Atoi(values["port"]); err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", values["port"], err)
	}
	if s.Secured, err = strconv.ParseBool(values["secured"]); err != nil {
		return nil, fmt.Errorf("invalid secured %q: %w", values["secured"], err)
	}
	if s.HonorHint, err = strconv.ParseBool(values["honorHint"]); err != nil {
		return nil, fmt.Errorf("invalid honorHint %q: %w", values["honorHint"], err)
	}
	if s.Reconnect, err = strconv.ParseBool(values["reconnect"]); err != nil {
		return nil, fmt.Errorf("invalid reconnect %q: %w", values["reconnect"], err)
	}
	if s.PollInterval, err = time.ParseDuration(values["pollInterval"]); err != nil {
		return nil, fmt.Errorf("invalid pollInterval %q: %w", values["pollInterval"], err)
	}

	if s.Host == "" {
		return nil, fmt.Errorf("no host given, use -host or %s", "RTMPT_HOST")
	}

	if s.Port == 0 {
		if s.Secured {
			s.Port = defaultHttpsPort
		} else {
			s.Port = defaultHttpPort
		}
	}

	return s, nil
}
