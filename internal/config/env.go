package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvTelegramToken overrides telegram.token when set.
const EnvTelegramToken = "TELEGRAM_BOT_TOKEN"

// LoadEnvFiles loads KEY=VALUE files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

// expandEnv substitutes ${VAR} and $VAR in the raw config text.
// Unset variables expand to the empty string.
func expandEnv(b []byte) []byte {
	return []byte(os.Expand(string(b), os.Getenv))
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if tok := strings.TrimSpace(os.Getenv(EnvTelegramToken)); tok != "" {
		cfg.Telegram.Token = tok
	}
}
