// Package config defines the configuration contract and will handle loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeySlackBotToken       = "SLACK_BOT_TOKEN"
	KeySlackAppToken       = "SLACK_APP_TOKEN"
	KeySlackBotID          = "SLACKBOT_ID"
	KeySynapseClientID     = "SYNAPSE_CLIENT_ID"
	KeySynapseClientSecret = "SYNAPSE_CLIENT_SECRET"
	KeySynapseFingerprint  = "SYNAPSE_FINGERPRINT"
	KeyMongoURI            = "MONGO_URI"
	KeyMongoDB             = "MONGO_DB"
	KeyAppEnv              = "APP_ENV"
	KeyLogLevel            = "LOG_LEVEL"
	KeyHTTPPort            = "HTTP_PORT"
	KeySlackBaseURL        = "SLACK_BASE_URL"
	KeySynapseBaseURL      = "SYNAPSE_BASE_URL"
	KeyProviderTimeout     = "PROVIDER_TIMEOUT"
	KeyRegisterURLBase     = "REGISTER_URL_BASE"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv          = EnvProduction
	DefaultLogLevel        = "info"
	DefaultHTTPPort        = 8080
	DefaultSlackBaseURL    = "https://slack.com/api"
	DefaultSynapseBaseURL  = "https://api.synapsepay.com/api/3"
	DefaultProviderTimeout = 5 * time.Second
	DefaultRegisterURLBase = "http://localhost:8080"

	// Recommended database names by environment.
	DefaultMongoDBProd = "slack_pay_bridge"
	DefaultMongoDBDev  = "slack_pay_bridge_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Secret      bool   // redacted in diagnostic output
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeySlackBotToken,
		Example:     "xoxb-...",
		Required:    true,
		Secret:      true,
		Description: "Slack bot token used for Web API calls (chat.postMessage, auth.test).",
	},
	{
		Key:         KeySlackAppToken,
		Example:     "xapp-...",
		Required:    true,
		Secret:      true,
		Description: "Slack app-level token used to open the Socket Mode firehose.",
	},
	{
		Key:         KeySlackBotID,
		Example:     "U0AB12CD3",
		Required:    true,
		Description: "Slack user id of the bot; messages mentioning <@id> are treated as commands.",
	},
	{
		Key:         KeySynapseClientID,
		Example:     "client_id_...",
		Required:    true,
		Secret:      true,
		Description: "Synapse API client id.",
	},
	{
		Key:         KeySynapseClientSecret,
		Example:     "client_secret_...",
		Required:    true,
		Secret:      true,
		Description: "Synapse API client secret.",
	},
	{
		Key:         KeySynapseFingerprint,
		Example:     "fingerprint_1234",
		Required:    true,
		Secret:      true,
		Description: "Synapse API device fingerprint.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Secret:      true,
		Description: "MongoDB connection string.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP port for the registration form, health, and diagnostics endpoints.",
	},
	{
		Key:         KeySlackBaseURL,
		Example:     DefaultSlackBaseURL,
		Default:     DefaultSlackBaseURL,
		Description: "Slack Web API base URL; override for tests or proxies.",
	},
	{
		Key:         KeySynapseBaseURL,
		Example:     DefaultSynapseBaseURL,
		Default:     DefaultSynapseBaseURL,
		Description: "Synapse API base URL; override for sandbox or tests.",
	},
	{
		Key:         KeyProviderTimeout,
		Example:     DefaultProviderTimeout.String(),
		Default:     DefaultProviderTimeout.String(),
		Description: "Upper bound for a single Synapse API call.",
	},
	{
		Key:         KeyRegisterURLBase,
		Example:     "https://pay-bridge.example.com",
		Default:     DefaultRegisterURLBase,
		Description: "Public base URL rendered in registration prompts.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	SlackBotToken       string
	SlackAppToken       string
	SlackBotID          string
	SynapseClientID     string
	SynapseClientSecret string
	SynapseFingerprint  string
	MongoURI            string
	MongoDB             string
	AppEnv              string
	LogLevel            string
	HTTPPort            int
	SlackBaseURL        string
	SynapseBaseURL      string
	ProviderTimeout     time.Duration
	RegisterURLBase     string
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:              firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		SlackBotToken:       strings.TrimSpace(os.Getenv(KeySlackBotToken)),
		SlackAppToken:       strings.TrimSpace(os.Getenv(KeySlackAppToken)),
		SlackBotID:          strings.TrimSpace(os.Getenv(KeySlackBotID)),
		SynapseClientID:     strings.TrimSpace(os.Getenv(KeySynapseClientID)),
		SynapseClientSecret: strings.TrimSpace(os.Getenv(KeySynapseClientSecret)),
		SynapseFingerprint:  strings.TrimSpace(os.Getenv(KeySynapseFingerprint)),
		MongoURI:            strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:             strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:            firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:            DefaultHTTPPort,
		SlackBaseURL:        firstNonEmpty(strings.TrimSpace(os.Getenv(KeySlackBaseURL)), DefaultSlackBaseURL),
		SynapseBaseURL:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeySynapseBaseURL)), DefaultSynapseBaseURL),
		ProviderTimeout:     DefaultProviderTimeout,
		RegisterURLBase:     firstNonEmpty(strings.TrimSpace(os.Getenv(KeyRegisterURLBase)), DefaultRegisterURLBase),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)
	for _, spec := range Contract {
		if !spec.Required {
			continue
		}
		if strings.TrimSpace(os.Getenv(spec.Key)) == "" {
			missing = append(missing, spec.Key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	timeoutRaw := strings.TrimSpace(os.Getenv(KeyProviderTimeout))
	if timeoutRaw != "" {
		timeout, parseErr := time.ParseDuration(timeoutRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyProviderTimeout, parseErr)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyProviderTimeout)
		}
		cfg.ProviderTimeout = timeout
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// AtBot returns the literal mention token identifying the bot as addressee.
func (c Config) AtBot() string {
	return "<@" + c.SlackBotID + ">"
}

// FormatRedacted renders the resolved configuration with secret values masked,
// suitable for config-only diagnostics.
func FormatRedacted(cfg Config) string {
	resolved := map[string]string{
		KeySlackBotToken:       cfg.SlackBotToken,
		KeySlackAppToken:       cfg.SlackAppToken,
		KeySlackBotID:          cfg.SlackBotID,
		KeySynapseClientID:     cfg.SynapseClientID,
		KeySynapseClientSecret: cfg.SynapseClientSecret,
		KeySynapseFingerprint:  cfg.SynapseFingerprint,
		KeyMongoURI:            cfg.MongoURI,
		KeyMongoDB:             cfg.MongoDB,
		KeyAppEnv:              cfg.AppEnv,
		KeyLogLevel:            cfg.LogLevel,
		KeyHTTPPort:            strconv.Itoa(cfg.HTTPPort),
		KeySlackBaseURL:        cfg.SlackBaseURL,
		KeySynapseBaseURL:      cfg.SynapseBaseURL,
		KeyProviderTimeout:     cfg.ProviderTimeout.String(),
		KeyRegisterURLBase:     cfg.RegisterURLBase,
	}

	lines := make([]string, 0, len(Contract))
	for _, spec := range Contract {
		value := resolved[spec.Key]
		if spec.Secret && value != "" {
			value = "[redacted]"
		}
		lines = append(lines, fmt.Sprintf("%s=%s", spec.Key, value))
	}

	return strings.Join(lines, "\n")
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
