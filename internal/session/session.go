// Package session resolves the admin credential handed to the feed manager.
//
// The manager itself never reads ambient state; binaries pick a Source,
// resolve it once and pass the token to feed.Manager.Connect.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
)

// DefaultEnvVar is the environment variable read by Env when no name is given.
const DefaultEnvVar = "CSMS_ADMIN_TOKEN"

// DefaultPlaceholderPrefix marks tokens issued by the offline demo sign-in.
const DefaultPlaceholderPrefix = "demo_token_"

// Source yields the current credential. An empty token with a nil error
// means no credential is available.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Static always returns the same token.
type Static string

// Token returns the static token.
func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}

// Env reads the token from an environment variable.
type Env struct {
	Name string // DefaultEnvVar when empty
}

// Token returns the trimmed variable value.
func (e Env) Token(context.Context) (string, error) {
	name := e.Name
	if name == "" {
		name = DefaultEnvVar
	}
	return strings.TrimSpace(os.Getenv(name)), nil
}

// File reads the token from a file. A missing file means no credential.
type File struct {
	Path string
}

// Token returns the trimmed file content.
func (f File) Token(context.Context) (string, error) {
	if f.Path == "" {
		return "", nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Chain returns the first non-empty token. Errors stop the chain.
type Chain []Source

// Token walks the chain in order.
func (c Chain) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		token, err := src.Token(ctx)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return "", nil
}

// IsPlaceholder reports whether token was issued by NewPlaceholder.
func IsPlaceholder(token, prefix string) bool {
	if prefix == "" {
		prefix = DefaultPlaceholderPrefix
	}
	return strings.HasPrefix(token, prefix)
}

// NewPlaceholder issues a demo token for offline sign-in. The feed manager
// treats such tokens as no credential and starts demo mode.
func NewPlaceholder(prefix string) string {
	if prefix == "" {
		prefix = DefaultPlaceholderPrefix
	}
	return prefix + uuid.NewString()
}
