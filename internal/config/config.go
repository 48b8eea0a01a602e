package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BRIDGE"

type Config interface {
	EnvConfig
	OAuthConfig
	SecurityConfig
	ProbeConfig
	StoreConfig
}

type mainConfig struct {
	EnvVars
	OAuth
	Security
	Probe
	Store
}

func defaults() mainConfig {
	return mainConfig{
		EnvVars: EnvVars{
			Port:            "8080",
			AppName:         "Workflow Bridge",
			Env:             "DEV",
			LogLevel:        "info",
			BaseURL:         "https://api.coze.com",
			SiteURL:         "https://www.coze.com",
			DataFolder:      "./data",
			RateLimit:       60,
			WorkflowTimeout: 60 * time.Second,
		},
		OAuth: OAuth{
			RedirectURI:          "http://localhost:8080/oauth/callback",
			Scopes:               []string{"workflows:read", "workflows:execute", "chat:read", "chat:write"},
			AuthURL:              "https://www.coze.com/api/permission/oauth2/authorize",
			TokenURL:             "https://www.coze.com/api/permission/oauth2/token",
			TokenExchangeTimeout: 20 * time.Second,
			RefreshSkew:          5 * time.Minute,
		},
		Security: Security{
			RequirePKCE:     true,
			SessionLifetime: 10 * time.Minute,
		},
		Probe: Probe{
			ProbeFastTimeout: 3 * time.Second,
			ProbeFullTimeout: 10 * time.Second,
			ProbeConcurrency: 4,
		},
		Store: Store{
			TokenStore:     "file",
			TokenStorePath: "./data/token.json",
			RedisAddr:      "localhost:6379",
			RedisKey:       "workflow-bridge:token",
		},
	}
}

// New returns the built-in defaults without reading the environment.
func New() Config {
	return defaults()
}

// Load reads an optional .env file and then BRIDGE_* environment variables
// over the defaults. A missing .env file is not an error. Only prefixed names
// are read: fields carry split_words tags instead of envconfig names, so
// envconfig has no unprefixed alternative to fall back to.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "[config.Load] reading %s", f)
		}
	}

	c := defaults()
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, errors.Wrap(err, "[config.Load] envconfig")
	}
	return c, nil
}
