package domain

import (
	"context"
	"errors"
	"time"
)

const (
	// ScopeRead grants the property/rankings read surface.
	ScopeRead = "read"
	// ScopeAdmin additionally grants refresh triggers and key management.
	ScopeAdmin = "admin"
)

type Service interface {
	List(ctx context.Context) ([]Response, error)
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	Rotate(ctx context.Context, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, keyID string) error
	Authenticate(ctx context.Context, rawKey string) (*Identity, error)
}

type CreateRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
	// TTLDays expires the key that many days after creation. Zero means
	// no expiry.
	TTLDays int `json:"ttl_days"`
}

type Response struct {
	KeyID            string     `json:"key_id"`
	Name             string     `json:"name"`
	Scopes           []string   `json:"scopes"`
	IsActive         bool       `json:"is_active"`
	UsageCount       int64      `json:"usage_count"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RotatedFromKeyID *string    `json:"rotated_from_key_id"`
}

// SecretResponse carries the plaintext key. It is returned exactly once,
// at creation or rotation; only the hash is stored.
type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	ID     int64    `json:"id"`
	KeyID  string   `json:"key_id"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// HasScope reports whether the identity carries the scope. Admin keys
// pass every check.
func (i *Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidKeyID = errors.New("invalid_key_id")
	ErrInvalidScope = errors.New("invalid_scope")
	ErrNotFound     = errors.New("not_found")
	ErrInvalidKey   = errors.New("invalid_api_key")
)
