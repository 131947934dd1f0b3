package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"anipink/internal/backend"
)

type tokenFile struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SaveToken writes the account's token to path with owner-only permissions.
func SaveToken(path string, res backend.AuthResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	data, err := json.Marshal(tokenFile(res))
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// LoadToken reads a saved token. ok is false when none was saved.
func LoadToken(path string) (backend.AuthResult, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return backend.AuthResult{}, false, nil
	}
	if err != nil {
		return backend.AuthResult{}, false, fmt.Errorf("load token: %w", err)
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return backend.AuthResult{}, false, fmt.Errorf("load token: %w", err)
	}
	return backend.AuthResult(tf), true, nil
}

func ClearToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}
