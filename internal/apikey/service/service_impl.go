package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/sentinel/internal/apikey/domain"
	"github.com/smallbiznis/sentinel/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix              = "sk_live_key_"
	apiKeySecretBytes         = 32
	apiKeyRotationGracePeriod = 24 * time.Hour
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  apikeydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  apikeydomain.Repository
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context) ([]apikeydomain.Response, error) {
	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	scopes, err := normalizeScopes(req.Scopes)
	if err != nil {
		return nil, err
	}
	if req.TTLDays < 0 {
		return nil, fmt.Errorf("%w: negative ttl", apikeydomain.ErrInvalidName)
	}

	now := s.clock.Now()
	cred, err := s.mint()
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        cred.id,
		KeyID:     cred.keyID,
		Name:      name,
		Scopes:    scopes,
		KeyHash:   cred.hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.TTLDays > 0 {
		key.ExpiresAt = ptrTime(now.AddDate(0, 0, req.TTLDays))
	}

	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key created",
		zap.String("key_id", key.KeyID),
		zap.Strings("scopes", scopes),
	)
	return &apikeydomain.SecretResponse{KeyID: key.KeyID, APIKey: cred.plain}, nil
}

func (s *Service) Rotate(ctx context.Context, keyID string) (*apikeydomain.SecretResponse, error) {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var result *apikeydomain.SecretResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByKeyID(ctx, tx, trimmed)
		if err != nil {
			return err
		}
		if current == nil || !current.IsActive || s.isExpired(current.ExpiresAt) {
			return apikeydomain.ErrNotFound
		}

		now := s.clock.Now()
		current.ExpiresAt = ptrTime(now.Add(apiKeyRotationGracePeriod))
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		cred, err := s.mint()
		if err != nil {
			return err
		}

		rotatedFrom := current.KeyID
		next := &apikeydomain.APIKey{
			ID:               cred.id,
			KeyID:            cred.keyID,
			Name:             current.Name,
			Scopes:           current.Scopes,
			KeyHash:          cred.hash,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
			RotatedFromKeyID: &rotatedFrom,
		}

		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		result = &apikeydomain.SecretResponse{KeyID: next.KeyID, APIKey: cred.plain}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	return s.repo.Update(ctx, s.db, key)
}

// Authenticate resolves a bearer credential to its key identity and
// bumps the usage counter. A failed usage write does not fail the
// request; the caller is already proven.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*apikeydomain.Identity, error) {
	trimmed := strings.TrimSpace(rawKey)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidKey
	}

	hash := apikeydomain.HashAPIKey(trimmed)
	key, err := s.repo.FindActiveByHash(ctx, s.db, hash, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if key == nil || subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return nil, apikeydomain.ErrInvalidKey
	}

	if err := s.repo.RecordUsage(ctx, s.db, key.ID, s.clock.Now()); err != nil {
		s.log.Warn("api key usage accounting failed",
			zap.String("key_id", key.KeyID),
			zap.Error(err),
		)
	}

	return &apikeydomain.Identity{
		ID:     int64(key.ID),
		KeyID:  key.KeyID,
		Name:   key.Name,
		Scopes: append([]string(nil), key.Scopes...),
	}, nil
}

func (s *Service) isExpired(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return s.clock.Now().After(*expiresAt)
}

func normalizeScopes(scopes []string) ([]string, error) {
	if len(scopes) == 0 {
		return []string{apikeydomain.ScopeRead}, nil
	}

	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		cleaned := strings.ToLower(strings.TrimSpace(scope))
		switch cleaned {
		case apikeydomain.ScopeRead, apikeydomain.ScopeAdmin:
		default:
			return nil, fmt.Errorf("%w: %q", apikeydomain.ErrInvalidScope, scope)
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out, nil
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:            key.KeyID,
		Name:             key.Name,
		Scopes:           key.Scopes,
		IsActive:         key.IsActive,
		UsageCount:       key.UsageCount,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}

// minted is one freshly generated credential. plain leaves the process
// exactly once, in the create or rotate response.
type minted struct {
	id    snowflake.ID
	keyID string
	plain string
	hash  string
}

// mint generates a key ID from a snowflake and pairs it with a random
// 256-bit secret. The stored hash covers the full plaintext, prefix
// included, so a leaked database row cannot reconstruct the credential.
func (s *Service) mint() (minted, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return minted{}, err
	}

	id := s.genID.Generate()
	suffix := strings.ToUpper(strconv.FormatInt(int64(id), 36))
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, suffix, hex.EncodeToString(secret))
	return minted{
		id:    id,
		keyID: "key_" + suffix,
		plain: plain,
		hash:  apikeydomain.HashAPIKey(plain),
	}, nil
}

func ptrTime(value time.Time) *time.Time {
	return &value
}
