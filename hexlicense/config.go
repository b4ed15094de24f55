package hexlicense

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// OfflineGraceDays is how long a cached verdict stays acceptable after
	// the last successful online validation.
	OfflineGraceDays = 7
	// OfflineGrace is OfflineGraceDays as a duration.
	OfflineGrace = OfflineGraceDays * 24 * time.Hour

	// EnvPrefix prefixes every environment variable read by LoadConfig.
	EnvPrefix = "HEXLICENSE"

	DefaultAPIURL    = "https://api.hexrift.net/api"
	DefaultProductID = "Hex-Status-2.0"
	DefaultVersion   = "2.0.0"
	defaultCacheDir  = ".hexlicense"
)

// Config enumerates every option recognised by NewManager.
// Environment variables are HEXLICENSE_<envconfig tag>, e.g. HEXLICENSE_LICENSE_KEY.
type Config struct {
	APIURL     string        `yaml:"api_url" envconfig:"API_URL" validate:"required,url"`
	ProductID  string        `yaml:"product_id" envconfig:"PRODUCT_ID" validate:"required"`
	Version    string        `yaml:"version" envconfig:"VERSION" validate:"required"`
	LicenseKey string        `yaml:"license_key" envconfig:"LICENSE_KEY"`
	CacheDir   string        `yaml:"cache_dir" envconfig:"CACHE_DIR" validate:"required"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	// UserAgent defaults to HexLicense-GoClient/<Version>.
	UserAgent string `yaml:"user_agent" envconfig:"USER_AGENT"`
	// JournalURL optionally names a verdict journal for the CLI, see journal.Open.
	JournalURL string `yaml:"journal_url" envconfig:"JOURNAL_URL"`

	// Capabilities pins the host capability descriptor. Nil means detect once
	// in NewManager.
	Capabilities *Capabilities `yaml:"capabilities" ignored:"true"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		APIURL:    DefaultAPIURL,
		ProductID: DefaultProductID,
		Version:   DefaultVersion,
		CacheDir:  DefaultCacheDir(),
		Timeout:   DefaultTimeout,
	}
}

// DefaultCacheDir returns ~/.hexlicense, or a directory under the system temp
// dir when the home directory cannot be determined.
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), defaultCacheDir)
	}
	return filepath.Join(home, defaultCacheDir)
}

// LoadConfig layers defaults, the optional YAML file at path, and HEXLICENSE_*
// environment variables, in that order, then validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	// Fields without a matching variable are left as they are.
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. The license key is not required here;
// a missing key is reported by Validate on the Manager without network access.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}

func (c Config) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return "HexLicense-GoClient/" + c.Version
}
