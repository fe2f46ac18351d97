// Package config loads the per-ISP account configuration used by the
// imaplist tool.
//
// A configuration maps an ISP name to its server and credentials:
//
//	mail.com:
//	  net:
//	    hostname: imap.mail.com
//	    port: 993
//	  imap:
//	    path_sep: /
//	  user:
//	    login: someone@mail.com
//	    password: secret
//
// Files ending in .toml are read as TOML with the same layout. Encrypted
// configurations are YAML documents ciphered with AES (see Cipher).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/net/idna"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownISP is returned when looking up an ISP that is not configured.
	ErrUnknownISP = errors.New("config: unknown ISP")
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("config: invalid configuration")
)

type Net struct {
	Hostname string `yaml:"hostname" toml:"hostname"`
	Port     int    `yaml:"port" toml:"port"`
}

type IMAP struct {
	// PathSep is the hierarchy delimiter the server uses in mailbox names
	PathSep string `yaml:"path_sep" toml:"path_sep"`
}

type User struct {
	Login    string `yaml:"login" toml:"login"`
	Password string `yaml:"password" toml:"password"`
}

// ISP is the configuration of one account.
type ISP struct {
	Net  Net  `yaml:"net" toml:"net"`
	IMAP IMAP `yaml:"imap" toml:"imap"`
	User User `yaml:"user" toml:"user"`
}

// Config maps ISP names to their settings.
type Config map[string]ISP

// Parse decodes and validates a YAML configuration. Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseTOML is Parse for TOML documents.
func ParseTOML(data []byte) (Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a clear configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data)
	}
	return Parse(data)
}

// LoadEncrypted reads a configuration file ciphered with c.
func LoadEncrypted(path string, c *Cipher) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(c.Decrypt(data))
}

// Dump renders the configuration as YAML, ISPs in name order.
func (c Config) Dump() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]ISP(c)); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// ISPNames returns the configured ISP names, sorted.
func (c Config) ISPNames() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ISP returns the settings of the named ISP.
func (c Config) ISP(name string) (ISP, error) {
	isp, ok := c[name]
	if !ok {
		return ISP{}, fmt.Errorf("%w: %q", ErrUnknownISP, name)
	}
	return isp, nil
}

// Equal reports whether both configurations hold the same ISPs with the
// same settings.
func (c Config) Equal(other Config) bool {
	if len(c) != len(other) {
		return false
	}
	for name, isp := range c {
		o, ok := other[name]
		if !ok || o != isp {
			return false
		}
	}
	return true
}

// Validate checks every ISP. The first failure is returned, wrapping ErrInvalid.
func (c Config) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: no ISP configured", ErrInvalid)
	}
	for _, name := range c.ISPNames() {
		if err := c[name].validate(); err != nil {
			return fmt.Errorf("%w: ISP %q: %s", ErrInvalid, name, err)
		}
	}
	return nil
}

func (isp ISP) validate() error {
	if isp.Net.Hostname == "" {
		return errors.New("net.hostname is missing")
	}
	if _, err := idna.Lookup.ToASCII(isp.Net.Hostname); err != nil {
		return fmt.Errorf("net.hostname %q: %v", isp.Net.Hostname, err)
	}
	if isp.Net.Port <= 0 || isp.Net.Port > 65535 {
		return fmt.Errorf("net.port %d out of range", isp.Net.Port)
	}
	if isp.IMAP.PathSep == "" {
		return errors.New("imap.path_sep is missing")
	}
	if isp.User.Login == "" {
		return errors.New("user.login is missing")
	}
	if isp.User.Password == "" {
		return errors.New("user.password is missing")
	}
	return nil
}

// Address returns the ASCII form of the hostname, suitable for dialing.
func (isp ISP) Address() (host string, port int, err error) {
	host, err = idna.Lookup.ToASCII(isp.Net.Hostname)
	if err != nil {
		return "", 0, fmt.Errorf("config: hostname %q: %w", isp.Net.Hostname, err)
	}
	return host, isp.Net.Port, nil
}

var backupSuffixRE = regexp.MustCompile(`^\.(\d+)$`)

// BackupPath returns the first unused "<path>.backup.N" name, N being one
// more than the highest existing index.
func BackupPath(path string) (string, error) {
	base := filepath.Base(path) + ".backup"
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return "", fmt.Errorf("config: backup: %w", err)
	}
	index := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), base) {
			continue
		}
		m := backupSuffixRE.FindStringSubmatch(e.Name()[len(base):])
		if m == nil {
			continue
		}
		if i, err := strconv.Atoi(m[1]); err == nil && i > index {
			index = i
		}
	}
	return fmt.Sprintf("%s.backup.%d", path, index+1), nil
}
