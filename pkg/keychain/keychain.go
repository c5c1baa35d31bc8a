// Package keychain stores the bot token in the system keychain.
package keychain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	serviceName  = "tgpoll"
	tokenAccount = "telegram-bot-token"
)

// ErrNotFound is returned when no token has been stored yet.
var ErrNotFound = keyring.ErrNotFound

// Token retrieves the bot token from the system keychain.
func Token() (string, error) {
	token, err := keyring.Get(serviceName, tokenAccount)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read bot token from keychain: %w", err)
	}

	return token, nil
}

// SetToken stores the bot token in the system keychain.
func SetToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("bot token is empty")
	}

	if err := keyring.Set(serviceName, tokenAccount, token); err != nil {
		return fmt.Errorf("store bot token in keychain: %w", err)
	}

	return nil
}

// DeleteToken removes the stored bot token.
func DeleteToken() error {
	if err := keyring.Delete(serviceName, tokenAccount); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete bot token from keychain: %w", err)
	}

	return nil
}
