package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/likhithmdev/Final-Sic/internal/names"
)

// Credentials authenticate one identity against the check-in service.
type Credentials struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// String hides the password so credentials can be logged safely.
func (c Credentials) String() string {
	return fmt.Sprintf("{email:%s password:***}", c.Email)
}

// Identities maps a normalized identity key to its credentials.
type Identities map[string]Credentials

// Lookup returns the credentials for an identity key, normalizing it first.
func (ids Identities) Lookup(identity string) (Credentials, bool) {
	c, ok := ids[names.NormalizeIdentity(identity)]
	return c, ok
}

// Keys returns the identity keys in sorted order.
func (ids Identities) Keys() []string {
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

type identitiesFile struct {
	Identities map[string]Credentials `yaml:"identities"`
}

// passwordEnvKey returns the environment variable that overrides the password
// of an identity, e.g. "jan_novak" -> CHECKIN_JAN_NOVAK_PASSWORD.
func passwordEnvKey(identity string) string {
	return "CHECKIN_" + strings.ToUpper(identity) + "_PASSWORD"
}

// LoadIdentities reads the identities YAML file. The returned error wraps
// os.ErrNotExist when the file is missing.
func LoadIdentities(path string) (Identities, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read identities file %s: %w", path, err)
	}
	return ParseIdentities(data)
}

// ParseIdentities parses the identities document:
//
//	identities:
//	  alice:
//	    email: alice@example.com
//	    password: secret
//
// Keys are normalized with names.NormalizeIdentity. A password may be
// left empty in the file and supplied through CHECKIN_<KEY>_PASSWORD.
func ParseIdentities(data []byte) (Identities, error) {
	var doc identitiesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse identities: %w", err)
	}

	ids := make(Identities, len(doc.Identities))
	for rawKey, creds := range doc.Identities {
		key := names.NormalizeIdentity(rawKey)
		if key == "" {
			return nil, fmt.Errorf("identity key %q is empty after normalization", rawKey)
		}
		if _, dup := ids[key]; dup {
			return nil, fmt.Errorf("identity %q is configured more than once", key)
		}
		if pw := os.Getenv(passwordEnvKey(key)); pw != "" {
			creds.Password = pw
		}
		if creds.Email == "" {
			return nil, fmt.Errorf("identity %q has no email", key)
		}
		if creds.Password == "" {
			return nil, fmt.Errorf("identity %q has no password (set it in the file or in %s)", key, passwordEnvKey(key))
		}
		ids[key] = creds
	}
	return ids, nil
}
