// Package config loads the gateway configuration from config.yaml and
// VBG_-prefixed environment variables. The loaded value is immutable: it is
// built once at process start and injected into the components that need
// it, never read as ambient global state.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	SeaLion SeaLionConfig `koanf:"sealion"`
	Bank    BankConfig    `koanf:"bank"`
	Chat    ChatConfig    `koanf:"chat"`
	Storage StorageConfig `koanf:"storage"`

	// Banks is the closed set of supported bank identifiers, canonical
	// lowercase form.
	Banks []string `koanf:"banks"`

	// Recipients is the allow-list of transfer destinations. A transfer to
	// any account not listed here is rejected before the network call.
	Recipients []RecipientConfig `koanf:"recipients"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type SeaLionConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	// MaxCompletionTokens bounds the model's output length.
	MaxCompletionTokens int     `koanf:"max_completion_tokens"`
	Temperature         float32 `koanf:"temperature"`
	// Timeout is a duration string bounding each completion call.
	Timeout string `koanf:"timeout"`
}

type BankConfig struct {
	BaseURL     string `koanf:"base_url"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	ConsumerKey string `koanf:"consumer_key"`
	Timeout     string `koanf:"timeout"`
	// TransferCeiling is the exclusive upper bound on transfer amounts;
	// the sandbox misbehaves at 1000 and above.
	TransferCeiling float64 `koanf:"transfer_ceiling"`
}

type ChatConfig struct {
	// MaxTurns is the history window in user turns.
	MaxTurns int `koanf:"max_turns"`
	// TokenBudget is a secondary bound on prompt size; 0 disables it.
	TokenBudget int `koanf:"token_budget"`
}

type StorageConfig struct {
	// Path is the SQLite file for the turn audit store; empty disables
	// auditing.
	Path string `koanf:"path"`
}

type RecipientConfig struct {
	Name      string `koanf:"name"`
	Bank      string `koanf:"bank"`
	AccountID string `koanf:"account_id"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile loads configuration from the given YAML file, then overlays
// VBG_-prefixed environment variables (VBG_SEALION__API_KEY maps to
// sealion.api_key).
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars and defaults.
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("VBG_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "VBG_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.SeaLion.APIKey = substituteEnvVars(cfg.SeaLion.APIKey)
	cfg.Bank.Password = substituteEnvVars(cfg.Bank.Password)
	cfg.Bank.ConsumerKey = substituteEnvVars(cfg.Bank.ConsumerKey)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                   8080,
		"sealion.base_url":              "https://api.sea-lion.ai/v1",
		"sealion.model":                 "aisingapore/Llama-SEA-LION-v3.5-8B-R",
		"sealion.max_completion_tokens": 300,
		"sealion.temperature":           0.2,
		"sealion.timeout":               "30s",
		"bank.base_url":                 "https://obp-api-production-bd77.up.railway.app",
		"bank.timeout":                  "15s",
		"bank.transfer_ceiling":         1000.0,
		"chat.max_turns":                16,
		"chat.token_budget":             6000,
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	if !k.Exists("banks") {
		k.Set("banks", []string{domain.BankA, domain.BankB, domain.BankC})
	}

	// Default allow-list: the sandbox's one pre-provisioned recipient and
	// their three accounts.
	if !k.Exists("recipients") {
		k.Set("recipients", []map[string]any{
			{"name": "Maxi Smith", "bank": domain.BankA, "account_id": "60d31a56-ad9b-444f-afa8-ee47e5240124"},
			{"name": "Maxi Smith", "bank": domain.BankB, "account_id": "9c701fd4-86ce-4007-bbf1-568bf19eb2ba"},
			{"name": "Maxi Smith", "bank": domain.BankC, "account_id": "fc73a698-428f-434c-a425-67dd52e572c2"},
		})
	}
}

func (c *Config) validate() error {
	for i, b := range c.Banks {
		canonical, ok := domain.NormalizeBank(b)
		if !ok {
			return fmt.Errorf("banks[%d]: empty bank identifier", i)
		}
		c.Banks[i] = canonical
	}
	for i := range c.Recipients {
		r := &c.Recipients[i]
		canonical, ok := domain.NormalizeBank(r.Bank)
		if !ok || r.AccountID == "" {
			return fmt.Errorf("recipients[%d]: bank and account_id are required", i)
		}
		r.Bank = canonical
	}
	if c.Chat.MaxTurns <= 0 {
		return fmt.Errorf("chat.max_turns must be positive, got %d", c.Chat.MaxTurns)
	}
	if c.Bank.TransferCeiling <= 0 {
		return fmt.Errorf("bank.transfer_ceiling must be positive, got %v", c.Bank.TransferCeiling)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
