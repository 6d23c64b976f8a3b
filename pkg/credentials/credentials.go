// Package credentials resolves named secrets (cloud keys, SSH keys) from a
// chain of sources: the process environment, a dotenv file and the OS
// keyring. Sources are consulted in order and the first non-empty value
// wins.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

// Source looks up a credential by name
type Source interface {
	Lookup(name string) (string, bool)
	Name() string
}

// EnvSource reads the process environment
type EnvSource struct{}

func (EnvSource) Lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	return v, ok && v != ""
}

func (EnvSource) Name() string { return "env" }

// DotenvSource holds values parsed from a dotenv file. The process
// environment is left untouched.
type DotenvSource struct {
	path   string
	values map[string]string
}

// NewDotenvSource parses path. A missing file yields an empty source.
func NewDotenvSource(path string) (*DotenvSource, error) {
	src := &DotenvSource{path: path, values: map[string]string{}}
	if path == "" {
		return src, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return src, nil
		}
		return nil, fmt.Errorf("failed to read dotenv file %s: %w", path, err)
	}
	src.values = values
	return src, nil
}

func (d *DotenvSource) Lookup(name string) (string, bool) {
	v, ok := d.values[name]
	return v, ok && v != ""
}

func (d *DotenvSource) Name() string { return "dotenv:" + d.path }

// KeyringSource reads the OS keyring under a fixed service name
type KeyringSource struct {
	Service string
}

func (k KeyringSource) Lookup(name string) (string, bool) {
	if k.Service == "" {
		return "", false
	}
	v, err := keyring.Get(k.Service, name)
	if err != nil {
		return "", false
	}
	return v, v != ""
}

func (k KeyringSource) Name() string { return "keyring:" + k.Service }

// Chain consults sources in order
type Chain []Source

// Lookup returns the first value found and the name of its source
func (c Chain) Lookup(name string) (value, source string, ok bool) {
	for _, s := range c {
		if v, found := s.Lookup(name); found {
			return v, s.Name(), true
		}
	}
	return "", "", false
}

// Get returns the value of name or an empty string
func (c Chain) Get(name string) string {
	v, _, _ := c.Lookup(name)
	return v
}

// Missing returns the names that no source provides, in input order
func (c Chain) Missing(names []string) []string {
	var missing []string
	for _, name := range names {
		if _, _, ok := c.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Environ renders names as KEY=value pairs for child processes. Names
// without a value are skipped.
func (c Chain) Environ(names []string) []string {
	var env []string
	for _, name := range names {
		if v, _, ok := c.Lookup(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

// NewChain builds the default chain: env, then dotenv (if path is set),
// then keyring (if service is set)
func NewChain(dotenvPath, keyringService string) (Chain, error) {
	chain := Chain{EnvSource{}}

	if dotenvPath != "" {
		d, err := NewDotenvSource(dotenvPath)
		if err != nil {
			return nil, err
		}
		chain = append(chain, d)
	}

	if strings.TrimSpace(keyringService) != "" {
		chain = append(chain, KeyringSource{Service: keyringService})
	}
	return chain, nil
}
