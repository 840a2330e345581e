package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

const (
	// RoleChatUser may connect, ask questions and read the session.
	RoleChatUser = "chat_user"
	// RoleExporter may write turn results to object storage.
	RoleExporter = "exporter"
)

var knownRoles = map[string]bool{RoleChatUser: true, RoleExporter: true}

// Identity is the operator behind an API key. Subject only appears in logs.
type Identity struct {
	Subject string
	Roles   []string
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator holds operator keys from SQLCHAT_AUTH_STATIC_KEYS.
// Keys are indexed by digest so the raw values are not kept around.
type StaticAPIKeyValidator struct {
	keys map[[sha256.Size]byte]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:subject:role|role
// entries. Unknown roles are rejected so a typo cannot silently lock an
// operator out of exports.
func NewStaticAPIKeyValidator(entries string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[[sha256.Size]byte]Identity{}}
	entries = strings.TrimSpace(entries)
	if entries == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(entries, ",") {
		key, identity, err := parseEntry(entry)
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256([]byte(key))
		if _, exists := validator.keys[digest]; exists {
			return nil, fmt.Errorf("invalid static key entry for %q: duplicate key", identity.Subject)
		}
		validator.keys[digest] = identity
	}
	return validator, nil
}

// parseEntry never echoes the key itself in its errors.
func parseEntry(entry string) (string, Identity, error) {
	parts := strings.Split(strings.TrimSpace(entry), ":")
	if len(parts) != 3 {
		return "", Identity{}, fmt.Errorf("invalid static key entry: expected key:subject:role|role")
	}
	key := strings.TrimSpace(parts[0])
	subject := strings.TrimSpace(parts[1])
	if key == "" || subject == "" {
		return "", Identity{}, fmt.Errorf("invalid static key entry: empty key or subject")
	}

	seen := map[string]bool{}
	roles := []string{}
	for _, role := range strings.Split(parts[2], "|") {
		role = strings.ToLower(strings.TrimSpace(role))
		switch {
		case role == "" || seen[role]:
			continue
		case !knownRoles[role]:
			return "", Identity{}, fmt.Errorf("invalid static key entry for %q: unknown role %q", subject, role)
		}
		seen[role] = true
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return "", Identity{}, fmt.Errorf("invalid static key entry for %q: at least one role is required", subject)
	}
	sort.Strings(roles)
	return key, Identity{Subject: subject, Roles: roles}, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[sha256.Sum256([]byte(apiKey))]
	return identity, ok
}
