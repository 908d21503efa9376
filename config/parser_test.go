package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
)

func TestParseConfig(t *testing.T) {
	config, err := ReadConfig("testdata/valid-config.json")
	if err != nil {
		t.Fatal(err)
	}

	if config.Path() != "testdata/valid-config.json" {
		t.Fatal("unexpected path", config.Path())
	}
	if config.HandshakeTimeoutDuration() != 5*time.Second {
		t.Fatal("unexpected timeout", config.HandshakeTimeoutDuration())
	}
	expect := []*Account{{
		Name:                   "work",
		Host:                   "imap.example.com",
		Port:                   993,
		Security:               SecurityTLS,
		ClientCertificateAlias: "work-cert",
	}, {
		Name:                    "personal",
		Protocol:                "smtp",
		Host:                    "mail.example.org",
		Port:                    587,
		Security:                SecuritySTARTTLS,
		RequireSecure:           true,
		SelectClientCertificate: true,
	}}
	if diff := cmp.Diff(expect, config.Accounts); diff != "" {
		t.Fatal(diff)
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv("MAILTLS_HOME", "/tmp/mailtls-home")
	config, err := ParseConfig([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	expect := &Config{
		Version:            CurrentVersion,
		CredentialStoreDir: filepath.Join("/tmp/mailtls-home", "credentials"),
		TrustStoreDir:      filepath.Join("/tmp/mailtls-home", "trust"),
		HandshakeTimeout:   "10s",
		LogLevel:           "info",
	}
	if diff := cmp.Diff(expect, config, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Fatal(diff)
	}
}

func TestValidate(t *testing.T) {
	type testcase struct {
		name   string
		input  string
		expect string
	}

	testcases := []testcase{{
		name:   "with invalid hujson",
		input:  `{"_version": 1,,}`,
		expect: "parsing hujson",
	}, {
		name:   "with unsupported version",
		input:  `{"_version": 2}`,
		expect: "unsupported config version: 2",
	}, {
		name:   "with invalid timeout",
		input:  `{"handshake_timeout": "-1s"}`,
		expect: "invalid handshake_timeout",
	}, {
		name:   "with invalid min TLS version",
		input:  `{"min_tls_version": "SSLv3"}`,
		expect: "invalid min_tls_version",
	}, {
		name:   "with invalid log level",
		input:  `{"log_level": "chatty"}`,
		expect: "invalid log_level",
	}, {
		name:   "with account without name",
		input:  `{"accounts": [{"host": "mail.example.com", "port": 993}]}`,
		expect: "missing account name",
	}, {
		name:   "with account without host",
		input:  `{"accounts": [{"name": "a", "port": 993}]}`,
		expect: "missing host",
	}, {
		name:   "with account with invalid port",
		input:  `{"accounts": [{"name": "a", "host": "mail.example.com", "port": 70000}]}`,
		expect: "invalid port",
	}, {
		name:   "with account with invalid security",
		input:  `{"accounts": [{"name": "a", "host": "mail.example.com", "port": 993, "security": "ssl"}]}`,
		expect: "invalid security",
	}, {
		name:   "with starttls account on an unknown port",
		input:  `{"accounts": [{"name": "a", "host": "mail.example.com", "port": 2525, "security": "starttls"}]}`,
		expect: "invalid protocol for starttls",
	}, {
		name: "with duplicate account names",
		input: `{"accounts": [
			{"name": "a", "host": "mail.example.com", "port": 993},
			{"name": "a", "host": "mail.example.org", "port": 993},
		]}`,
		expect: "duplicate account name",
	}}

	t.Setenv("MAILTLS_HOME", t.TempDir())
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.input))
			if err == nil || !strings.Contains(err.Error(), tc.expect) {
				t.Fatal("expected", tc.expect, "got", err)
			}
		})
	}
}

func TestReadOrCreateConfig(t *testing.T) {
	t.Setenv("MAILTLS_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.json")
	config, err := ReadOrCreateConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if config.Path() != path || len(config.Accounts) != 0 {
		t.Fatal("unexpected config", config.Path(), config.Accounts)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("should not have created the file", err)
	}
}

// copyValidConfig copies testdata/valid-config.json into a temporary
// directory and returns the new path.
func copyValidConfig(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "config.json")
	data, err := os.ReadFile("testdata/valid-config.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustReadFile(t *testing.T, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSaveAccountAlias(t *testing.T) {
	path := copyValidConfig(t)
	config, err := ReadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("for an existing account", func(t *testing.T) {
		if err := config.SaveAccountAlias("personal", "personal-cert"); err != nil {
			t.Fatal(err)
		}
		reloaded, err := ReadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		account, err := reloaded.Account("personal")
		if err != nil {
			t.Fatal(err)
		}
		if account.ClientCertificateAlias != "personal-cert" || account.SelectClientCertificate {
			t.Fatal("unexpected account", account)
		}
		if diff := cmp.Diff(config.Accounts, reloaded.Accounts); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("preserves the comments", func(t *testing.T) {
		data := mustReadFile(t, path)
		for _, comment := range []string{
			"// Paths are relative to the current directory in tests.",
			"// Ask which client certificate to use on the next connect.",
		} {
			if !strings.Contains(data, comment) {
				t.Fatal("lost comment", comment, "in", data)
			}
		}
	})

	t.Run("when the file cannot be written", func(t *testing.T) {
		path := copyValidConfig(t)
		config, err := ReadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		config.path = filepath.Join(t.TempDir(), "nonexistent", "config.json")
		if err := config.SaveAccountAlias("personal", "personal-cert"); err == nil {
			t.Fatal("expected an error")
		}
		account, err := config.Account("personal")
		if err != nil {
			t.Fatal(err)
		}
		if account.ClientCertificateAlias != "" || !account.SelectClientCertificate {
			t.Fatal("should not have changed the account", account)
		}
	})

	t.Run("for a missing account", func(t *testing.T) {
		err := config.SaveAccountAlias("nonexistent", "x")
		if !errors.Is(err, ErrNoSuchAccount) {
			t.Fatal("unexpected error", err)
		}
		if _, err := config.Account("nonexistent"); !errors.Is(err, ErrNoSuchAccount) {
			t.Fatal("unexpected error", err)
		}
	})

	t.Run("without a path", func(t *testing.T) {
		t.Setenv("MAILTLS_HOME", t.TempDir())
		config, err := ParseConfig([]byte("{}"))
		if err != nil {
			t.Fatal(err)
		}
		if err := config.Write(); err == nil || err.Error() != "config file path is empty" {
			t.Fatal("unexpected error", err)
		}
	})
}

func TestWrite(t *testing.T) {
	t.Run("preserves top-level comments", func(t *testing.T) {
		path := copyValidConfig(t)
		config, err := ReadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		config.LogLevel = "warn"
		if err := config.Write(); err != nil {
			t.Fatal(err)
		}
		data := mustReadFile(t, path)
		if !strings.Contains(data, "// Paths are relative to the current directory in tests.") {
			t.Fatal("lost comment in", data)
		}
		reloaded, err := ReadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if reloaded.LogLevel != "warn" {
			t.Fatal("unexpected log level", reloaded.LogLevel)
		}
		if diff := cmp.Diff(config.Accounts, reloaded.Accounts); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("creates a missing file", func(t *testing.T) {
		t.Setenv("MAILTLS_HOME", t.TempDir())
		path := filepath.Join(t.TempDir(), "config.json")
		config, err := ReadOrCreateConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := config.Write(); err != nil {
			t.Fatal(err)
		}
		reloaded, err := ReadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(config, reloaded, cmpopts.IgnoreUnexported(Config{})); diff != "" {
			t.Fatal(diff)
		}
	})
}
