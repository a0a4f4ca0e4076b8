package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// LOCAL_VOICE_HTTP_API_KEY for http.api_key.
const EnvPrefix = "LOCAL_VOICE"

// ConfigDirs returns the directories searched for the config file, most
// specific first.
func ConfigDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv(EnvPrefix + "_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// DefaultConfigFile is where the config command creates the file when none
// exists yet.
func DefaultConfigFile() (string, error) {
	dirs, err := ConfigDirs()
	if err != nil {
		return "", err
	}
	if len(dirs) == 0 {
		return "", errors.New("no configuration directory available")
	}
	return filepath.Join(dirs[0], AppName+".yml"), nil
}

// Setup registers defaults, environment binding and the config file with v
// and reads the file. An explicit file must exist; a missing file in the
// search path is not an error. It returns the file in use, if any.
func Setup(v *viper.Viper, file string) (string, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		dirs, err := ConfigDirs()
		if err != nil {
			return "", err
		}
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			log.Debug("No configuration file found, using defaults")
			return "", nil
		}
		return "", fmt.Errorf("could not read configuration file: %w", err)
	}

	used := v.ConfigFileUsed()
	log.Debug("Using configuration file", "path", used)
	return used, nil
}

// LoadDotEnv loads KEY=value pairs from path into the environment. Variables
// that are already set win. A missing file is ignored.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("unable to load %s: %w", path, err)
	}
	log.Debug("Loaded environment file", "path", path)
	return nil
}

// Watch reloads the config file on change and passes the new settings to
// onChange. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, onChange func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(v)
		if err != nil {
			log.Warn("Ignoring invalid configuration change", "path", e.Name, "error", err)
			return
		}
		log.Info("Configuration reloaded", "path", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}

// DefaultYAML is written by the config command when no file exists.
const DefaultYAML = `# TTS engine: chatterbox, kokoro or coqui
engine: chatterbox
# Python interpreter; "auto" searches PATH for python3 then python
python: auto
# generated audio is written here and removed after delivery
# output_dir: /tmp/local-voice-mcp
# runner scripts and downloaded models
# cache_dir: ~/.cache/local-voice-mcp
# install missing Python packages with pip on first use
auto_install: true

synthesis:
  timeout: 5m
  max_concurrent: 2

text:
  # convert markdown input to plain speech text
  strip_markdown: false

cache:
  enabled: true
  max_size_mb: 256

playback:
  timeout: 2m

janitor:
  schedule: "@every 10m"
  max_age: 30m

http:
  addr: 127.0.0.1:59125
  # required unless allow_unauthenticated is true
  # api_key: change-me
  rate_limit: 2
  rate_burst: 5
  allow_unauthenticated: false
  shutdown_timeout: 10s

log:
  # debug, info, warn or error
  level: info
  # auto, text or json
  format: auto
  # file: ~/.local/state/local-voice-mcp/server.log
`
