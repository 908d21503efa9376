package utils

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNoHome indicates that we could not figure out the home directory.
var ErrNoHome = errors.New("utils: cannot determine the mailtls home directory")

// GetHome returns the mailtls home directory. The MAILTLS_HOME
// environment variable, when set, overrides the default.
func GetHome() (string, error) {
	if home := os.Getenv("MAILTLS_HOME"); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", ErrNoHome
	}
	return filepath.Join(home, ".mailtls"), nil
}

// ConfigPath returns the config file path for the given home
func ConfigPath(home string) string {
	return filepath.Join(home, "config.json")
}

// CredentialStoreDir returns the dir containing client identities
func CredentialStoreDir(home string) string {
	return filepath.Join(home, "credentials")
}

// TrustStoreDir returns the dir containing trust exceptions
func TrustStoreDir(home string) string {
	return filepath.Join(home, "trust")
}

// RequiredDirs returns the required mailtls home directories
func RequiredDirs(home string) []string {
	return []string{CredentialStoreDir(home), TrustStoreDir(home)}
}

// MakeRequiredDirs creates the required directories below home.
func MakeRequiredDirs(home string) error {
	for _, d := range RequiredDirs(home) {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
