package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// claudeCodeFile is the layout of Claude Code's ~/.claude/.credentials.json.
type claudeCodeFile struct {
	ClaudeAiOauth *struct {
		AccessToken      string   `json:"accessToken"`
		RefreshToken     string   `json:"refreshToken"`
		ExpiresAt        int64    `json:"expiresAt"`
		Scopes           []string `json:"scopes"`
		SubscriptionType string   `json:"subscriptionType"`
	} `json:"claudeAiOauth"`
}

// ClaudeCodePath returns where Claude Code keeps its credentials on Linux.
func ClaudeCodePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".claude", ".credentials.json"), nil
}

// ReadClaudeCode reads a Claude Code credentials file so an existing login can
// be reused without a new authorization.
func ReadClaudeCode(path string) (Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credential{}, fmt.Errorf("read credentials: %w", err)
	}
	return ParseClaudeCode(data)
}

// ParseClaudeCode decodes the claudeAiOauth object of a Claude Code
// credentials file.
func ParseClaudeCode(data []byte) (Credential, error) {
	var file claudeCodeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Credential{}, fmt.Errorf("parse credentials: %w", err)
	}
	if file.ClaudeAiOauth == nil || file.ClaudeAiOauth.AccessToken == "" {
		return Credential{}, errors.New("no claudeAiOauth access token in credentials")
	}
	return Credential{
		AccessToken:  file.ClaudeAiOauth.AccessToken,
		RefreshToken: file.ClaudeAiOauth.RefreshToken,
		ExpiresAt:    file.ClaudeAiOauth.ExpiresAt,
	}, nil
}
