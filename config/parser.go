package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mailtls/mailtls/utils"
	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"
	"github.com/tailscale/hujson"
)

// CurrentVersion is the version of the config file format.
const CurrentVersion = 1

// ReadConfig reads the configuration from the path
func ReadConfig(path string) (*Config, error) {
	b, err := lockedfile.Read(path)
	if err != nil {
		return nil, err
	}

	c, err := ParseConfig(b)
	if err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	c.path = path
	return c, err
}

// ReadOrCreateConfig is like ReadConfig except that it returns a
// default config bound to path when the file does not exist.
func ReadOrCreateConfig(path string) (*Config, error) {
	c, err := ReadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		c, err = ParseConfig([]byte("{}"))
		if err != nil {
			return nil, err
		}
		c.path = path
		return c, nil
	}
	return c, err
}

// ParseConfig returns config from human JSON bytes, which are JSON
// bytes with comments and trailing commas.
func ParseConfig(b []byte) (*Config, error) {
	var c Config

	raw, err := hujson.Parse(b)
	if err != nil {
		return nil, errors.Wrap(err, "parsing hujson")
	}
	std := raw.Clone()
	std.Standardize()
	if err := json.Unmarshal(std.Pack(), &c); err != nil {
		return nil, errors.Wrap(err, "parsing json")
	}

	if err := c.Default(); err != nil {
		return nil, errors.Wrap(err, "defaulting")
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating")
	}

	c.raw = raw
	return &c, nil
}

// Config for the mailtls installation
type Config struct {
	// Private settings
	Comment string `json:"_,omitempty"`
	Version int64  `json:"_version"`

	CredentialStoreDir string     `json:"credential_store_dir"`
	TrustStoreDir      string     `json:"trust_store_dir"`
	HandshakeTimeout   string     `json:"handshake_timeout"`
	MinTLSVersion      string     `json:"min_tls_version"`
	LogLevel           string     `json:"log_level"`
	Accounts           []*Account `json:"accounts"`

	mutex sync.Mutex
	path  string

	// raw is the parsed file, which we patch on write so that
	// comments and formatting written by the user survive.
	raw hujson.Value
}

// Path returns the path of the config file, if any.
func (c *Config) Path() string {
	return c.path
}

// Write the config file to the path. Comments around the top-level
// settings are preserved.
func (c *Config) Write() error {
	c.Lock()
	defer c.Unlock()
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshalling config JSON")
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return errors.Wrap(err, "unmarshalling config JSON")
	}
	keys := make([]string, 0, len(members))
	for key := range members {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var ops []patchOperation
	for _, key := range keys {
		ops = append(ops, patchOperation{Op: "add", Path: "/" + pointerEscaper.Replace(key), Value: members[key]})
	}
	return c.patchAndWrite(ops)
}

// patchOperation is a JSON patch (RFC 6902) operation.
type patchOperation struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// pointerEscaper escapes a JSON pointer (RFC 6901) reference token.
var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// patchAndWrite applies ops to a copy of the parsed file and writes the
// result. On failure the in-memory file is left unchanged.
func (c *Config) patchAndWrite(ops []patchOperation) error {
	if c.path == "" {
		return errors.New("config file path is empty")
	}
	patch, err := json.Marshal(ops)
	if err != nil {
		return errors.Wrap(err, "marshalling config patch")
	}
	raw := hujson.Value{Value: &hujson.Object{}}
	if c.raw.Value != nil {
		raw = c.raw.Clone()
	}
	if err := raw.Patch(patch); err != nil {
		return errors.Wrap(err, "patching config")
	}
	raw.Format()
	if err := lockedfile.Write(c.path, bytes.NewReader(raw.Pack()), 0600); err != nil {
		return errors.Wrap(err, "writing config")
	}
	c.raw = raw
	return nil
}

// Lock acquires the write mutex
func (c *Config) Lock() {
	c.mutex.Lock()
}

// Unlock releases the write mutex
func (c *Config) Unlock() {
	c.mutex.Unlock()
}

// Default config settings
func (c *Config) Default() error {
	if c.Version == 0 {
		c.Version = CurrentVersion
	}
	if c.CredentialStoreDir == "" || c.TrustStoreDir == "" {
		home, err := utils.GetHome()
		if err != nil {
			return err
		}
		if c.CredentialStoreDir == "" {
			c.CredentialStoreDir = utils.CredentialStoreDir(home)
		}
		if c.TrustStoreDir == "" {
			c.TrustStoreDir = utils.TrustStoreDir(home)
		}
	}
	if c.HandshakeTimeout == "" {
		c.HandshakeTimeout = DefaultHandshakeTimeout.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	for _, account := range c.Accounts {
		if account != nil {
			account.Default()
		}
	}
	return nil
}

// DefaultHandshakeTimeout is the default handshake timeout.
const DefaultHandshakeTimeout = 10 * time.Second

// Validate the config file
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return errors.Errorf("unsupported config version: %d", c.Version)
	}
	if timeout, err := time.ParseDuration(c.HandshakeTimeout); err != nil || timeout <= 0 {
		return errors.Errorf("invalid handshake_timeout: %q", c.HandshakeTimeout)
	}
	switch c.MinTLSVersion {
	case "", "TLSv1.2", "TLSv1.3":
	default:
		return errors.Errorf("invalid min_tls_version: %q", c.MinTLSVersion)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log_level: %q", c.LogLevel)
	}
	names := make(map[string]bool)
	for idx, account := range c.Accounts {
		if account == nil {
			return errors.Errorf("accounts[%d]: empty account", idx)
		}
		if err := account.Validate(); err != nil {
			return errors.Wrapf(err, "accounts[%d]", idx)
		}
		if names[account.Name] {
			return errors.Errorf("accounts[%d]: duplicate account name: %q", idx, account.Name)
		}
		names[account.Name] = true
	}
	return nil
}

// HandshakeTimeoutDuration returns the validated handshake timeout.
func (c *Config) HandshakeTimeoutDuration() time.Duration {
	timeout, err := time.ParseDuration(c.HandshakeTimeout)
	if err != nil || timeout <= 0 {
		return DefaultHandshakeTimeout
	}
	return timeout
}

// ErrNoSuchAccount indicates that an account does not exist.
var ErrNoSuchAccount = errors.New("no such account")

// Account returns a copy of the account with the given name.
func (c *Config) Account(name string) (*Account, error) {
	c.Lock()
	defer c.Unlock()
	for _, account := range c.Accounts {
		if account.Name == name {
			copied := *account
			return &copied, nil
		}
	}
	return nil, errors.Wrap(ErrNoSuchAccount, name)
}

// SaveAccountAlias sets the client certificate alias of the named account,
// clears its select_client_certificate flag, and writes the config file.
// Only the two affected settings change in the file.
func (c *Config) SaveAccountAlias(name, alias string) error {
	c.Lock()
	defer c.Unlock()
	for idx, account := range c.Accounts {
		if account.Name != name {
			continue
		}
		aliasJSON, err := json.Marshal(alias)
		if err != nil {
			return errors.Wrap(err, "marshalling alias")
		}
		prefix := fmt.Sprintf("/accounts/%d/", idx)
		ops := []patchOperation{{
			Op:    "add",
			Path:  prefix + "client_certificate_alias",
			Value: aliasJSON,
		}, {
			Op:    "add",
			Path:  prefix + "select_client_certificate",
			Value: json.RawMessage("false"),
		}}
		if err := c.patchAndWrite(ops); err != nil {
			return err
		}
		account.ClientCertificateAlias = alias
		account.SelectClientCertificate = false
		return nil
	}
	return errors.Wrap(ErrNoSuchAccount, name)
}
