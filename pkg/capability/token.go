// Package capability provides per-task capability tokens: short-lived,
// scoped JWTs that let a sandboxed plugin reach exactly the API surface its
// run needs and nothing else.
package capability

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/plugin"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/shared"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/domain/task"
)

var (
	// ErrInvalidToken is returned when the token is malformed or the
	// signature does not verify.
	ErrInvalidToken = errors.New("invalid capability token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("capability token has expired")
	// ErrMissingGrant is returned when the token does not authorize the
	// requested action.
	ErrMissingGrant = errors.New("capability token does not grant this action")
)

// Claims are the claims of a capability token. The token is bound to one
// task run: subject is the task id, audience the plugin id, and Grants the
// complete list of allowed API actions for that run.
type Claims struct {
	TokenType string         `json:"token_type"`
	TaskID    string         `json:"task_id"`
	PluginID  string         `json:"plugin_id"`
	Grants    []plugin.Grant `json:"grants"`

	jwt.RegisteredClaims
}

// Allows reports whether the claims authorize the action on the given key.
// An empty key matches grants without key scoping; a grant with no keys
// covers every key for its action.
func (c *Claims) Allows(action string, key string) bool {
	for _, g := range c.Grants {
		if g.Action != action {
			continue
		}
		if len(g.Keys) == 0 {
			return true
		}
		for _, k := range g.Keys {
			if k == key {
				return true
			}
		}
	}
	return false
}

// Config holds issuer configuration.
type Config struct {
	Secret string
	Issuer string
}

// Issuer mints and verifies capability tokens.
type Issuer struct {
	config Config
}

// NewIssuer creates a capability token issuer.
func NewIssuer(config Config) *Issuer {
	return &Issuer{config: config}
}

// GrantsFor computes the grant set for one task run. It is a pure function
// of the task and its plugin so the authorization decision is auditable:
//   - every run may create output files and re-read the task's own output
//     key, which sequential per-item invocations extend,
//   - object input adds read access scoped to exactly the input keys,
//   - file input adds read access scoped to exactly the input file keys,
//   - the plugin's declared grants are appended verbatim.
func GrantsFor(t *task.Task, p *plugin.Plugin) []plugin.Grant {
	grants := []plugin.Grant{
		{Action: plugin.ActionFileCreate},
		{Action: plugin.ActionFileRead, Keys: []string{task.OutputKey(t.ID.String())}},
	}

	switch t.Input.Kind {
	case task.InputObjects:
		grants = append(grants, plugin.Grant{Action: plugin.ActionObjectRead, Keys: append([]string(nil), t.Input.Keys...)})
	case task.InputFiles:
		grants = append(grants, plugin.Grant{Action: plugin.ActionFileRead, Keys: append([]string(nil), t.Input.Keys...)})
	}

	grants = append(grants, p.Grants...)
	return grants
}

// Issue mints a token for one task run. The lifetime covers the sandbox
// timeout plus a grace window for the shim's final upload.
func (i *Issuer) Issue(taskID shared.ID, p *plugin.Plugin, grants []plugin.Grant, ttl time.Duration) (string, time.Time, error) {
	if p == nil || p.PluginID == "" {
		return "", time.Time{}, errors.New("plugin is required")
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		TokenType: "capability",
		TaskID:    taskID.String(),
		PluginID:  p.PluginID,
		Grants:    grants,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    i.config.Issuer,
			Subject:   taskID.String(),
			Audience:  jwt.ClaimStrings{p.PluginID},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign capability token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify validates a token and returns its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(i.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != "capability" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyAction validates a token and checks that it authorizes the given
// action on the given key.
func (i *Issuer) VerifyAction(tokenString, action, key string) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.Allows(action, key) {
		return nil, fmt.Errorf("%w: %s %s", ErrMissingGrant, action, key)
	}
	return claims, nil
}
