package app

import (
	"fmt"
	"net/url"
	"time"

	"github.com/aussiebroadwan/intra/pkg/intrasdk"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config is read from an optional YAML file, then overridden by the
// environment.
type Config struct {
	ClientID     string `yaml:"client_id" env:"CLIENT_ID" env-required:"true" env-description:"42 application UID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET" env-required:"true" env-description:"42 application secret"`
	RedirectURI  string `yaml:"redirect_uri" env:"REDIRECT_URI" env-required:"true" env-description:"Redirect URI registered with the application"`

	APIURL       string        `yaml:"api_url" env:"INTRA_API_URL" env-default:"https://api.intra.42.fr"`
	RateLimit    float64       `yaml:"rate_limit" env:"INTRA_RATE_LIMIT" env-default:"2" env-description:"Upstream requests per second"`
	RateBurst    int           `yaml:"rate_burst" env:"INTRA_RATE_BURST" env-default:"2"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" env:"INTRA_HTTP_TIMEOUT" env-default:"15s"`
	MaxPages     int           `yaml:"max_pages" env:"INTRA_MAX_PAGES" env-default:"10" env-description:"Upper bound on project listing pages"`
	LoginTimeout time.Duration `yaml:"login_timeout" env:"LOGIN_TIMEOUT" env-default:"60s"`

	PersistTokens        bool          `yaml:"persist_tokens" env:"PERSIST_TOKENS" env-default:"false" env-description:"Keep the token pair in the OS keychain"`
	KeyringService       string        `yaml:"keyring_service" env:"KEYRING_SERVICE" env-default:"intra"`
	CacheFile            string        `yaml:"cache_database_file" env:"CACHE_DATABASE_FILE" env-default:"intra-cache.db"`
	CacheTTL             time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"10m" env-description:"Lookup cache freshness; 0 disables the cache"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval" env:"HOUSEKEEPING_INTERVAL" env-default:"1h"`

	Env                 string        `yaml:"env" env:"ENV" env-default:"dev"`
	LogLevel            string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat           string        `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`
	Port                int           `yaml:"port" env:"PORT" env-default:"8080"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period" env:"SHUTDOWN_GRACE_PERIOD" env-default:"10s"`
}

// LoadConfig reads path (YAML) when given, otherwise the environment alone.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.RedirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: REDIRECT_URI %q is not an absolute URL", c.RedirectURI)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	return nil
}

// Credentials returns the application credentials.
func (c Config) Credentials() intrasdk.Credentials {
	return intrasdk.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURI,
	}
}

// CallbackPath is the path of the redirect URI, served by the companion
// server.
func (c Config) CallbackPath() string {
	u, err := url.Parse(c.RedirectURI)
	if err != nil {
		return ""
	}
	return u.Path
}

// CacheEnabled reports whether lookups go through the SQLite cache.
func (c Config) CacheEnabled() bool {
	return c.CacheFile != "" && c.CacheTTL > 0
}

// Usage describes every environment variable, for --help output.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
