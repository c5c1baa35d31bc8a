package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tgpoll/pkg/botapi"
	"tgpoll/pkg/checkpoint"
	"tgpoll/pkg/config"
	"tgpoll/pkg/keychain"
	"tgpoll/pkg/logger"
	"tgpoll/pkg/poller"
)

// loadConfig reads the --config file when given, otherwise the usual search
// path. A missing config file is fine; environment variables still apply.
func loadConfig() (*config.Config, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		return config.LoadFile(path)
	}

	cfg, err := config.LoadConfig()
	if errors.Is(err, config.ErrNotFound) {
		return config.FromEnv(), nil
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// setupLogger installs the configured logger as the slog default and returns
// one scoped to component.
func setupLogger(cfg *config.Config, component string) (*slog.Logger, error) {
	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return logger.Component(appLogger, component), nil
}

// resolveToken prefers the configured token and falls back to the keychain
// when use_keychain is set.
func resolveToken(cfg *config.Config) (string, error) {
	if token := strings.TrimSpace(cfg.Telegram.Token); token != "" {
		return token, nil
	}

	if !cfg.Telegram.UseKeychain {
		return "", errors.New("no bot token: set telegram.token, TELEGRAM_BOT_TOKEN, or telegram.use_keychain")
	}

	token, err := keychain.Token()
	if errors.Is(err, keychain.ErrNotFound) {
		return "", errors.New("no bot token in keychain: run `tgpoll token set` first")
	}
	if err != nil {
		return "", err
	}

	return token, nil
}

// openCheckpoint returns the configured cursor store and a function releasing it.
func openCheckpoint(cfg *config.Config) (checkpoint.Store, func() error, error) {
	switch cfg.Checkpoint.DriverName() {
	case config.CheckpointSQLite:
		store, err := checkpoint.OpenSQLite(cfg.Checkpoint.FilePath())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return checkpoint.NewMemory(), func() error { return nil }, nil
	}
}

// pollerOptions maps polling config onto the poll loop.
func pollerOptions(cfg *config.Config, store checkpoint.Store, log *slog.Logger) poller.Options {
	return poller.Options{
		Timeout:        cfg.Polling.PollTimeout(),
		Grace:          cfg.Polling.RequestGrace(),
		Limit:          cfg.Polling.Limit,
		AllowedUpdates: cfg.Polling.AllowedUpdates,
		Checkpoint:     store,
		Logger:         log,
	}
}

// warnUnknownUpdateKinds logs allowed_updates entries the client does not know.
// They are still sent; the server decides.
func warnUnknownUpdateKinds(cfg *config.Config, log *slog.Logger) {
	for _, kind := range botapi.NormalizeAllowedUpdates(cfg.Polling.AllowedUpdates) {
		if !botapi.IsKnownUpdateKind(kind) {
			log.Warn("Unknown update kind in allowed_updates", "kind", kind)
		}
	}
}
