// Package credentials keeps the signed-in user's tokens in a YAML file under the user config directory.
package credentials

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"github.com/osa030/flowshift/internal/domain/identity"
)

const fileName = "credentials.yaml"

// Credentials is a stored auth session.
type Credentials struct {
	UserID       string    `yaml:"user_id"`
	Email        string    `yaml:"email"`
	AccessToken  string    `yaml:"access_token"`
	RefreshToken string    `yaml:"refresh_token"`
	ExpiresAt    time.Time `yaml:"expires_at"`
}

// Identity returns the stored user.
func (c *Credentials) Identity() identity.Identity {
	return identity.User(c.UserID, c.Email)
}

// Token returns the stored tokens.
func (c *Credentials) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
	}
}

// Update replaces the tokens with a rotated set.
func (c *Credentials) Update(tok *oauth2.Token) {
	c.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	c.ExpiresAt = tok.Expiry
}

// File is the credentials file.
type File struct {
	path string
}

// DefaultPath returns <user config dir>/<appName>/credentials.yaml.
func DefaultPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve user config dir")
	}
	return filepath.Join(configDir, appName, fileName), nil
}

// NewFile returns the credentials file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load reads the stored credentials. It returns nil without error when nobody is signed in.
func (f *File) Load() (*Credentials, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read credentials file")
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, errors.Wrap(err, "failed to parse credentials file")
	}
	if creds.UserID == "" || creds.RefreshToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// Save writes the credentials, readable by the owner only.
func (f *File) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(err, "failed to create credentials directory")
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "failed to marshal credentials")
	}

	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write credentials file")
	}
	return nil
}

// Remove deletes the stored credentials. Removing a missing file is not an error.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "failed to remove credentials file")
	}
	return nil
}
