package redis

import (
	"context"
	"time"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/reconcile"
)

var _ reconcile.SurfaceRegistry = (*SurfaceRegistry)(nil)

// SurfaceRegistry tracks checkout surfaces as heartbeat keys. The checkout
// page refreshes its key on every heartbeat; once the TTL lapses the surface
// is deemed closed by the user.
type SurfaceRegistry struct {
	cli      RedisClient
	ttl      time.Duration
	stateTTL time.Duration
}

func NewSurfaceRegistry(cli RedisClient, ttl time.Duration) *SurfaceRegistry {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SurfaceRegistry{cli: cli, ttl: ttl, stateTTL: time.Hour}
}

func aliveKey(id string) string    { return "surface:alive:" + id }
func redirectKey(id string) string { return "surface:redirect:" + id }
func finalKey(id string) string    { return "surface:final:" + id }

func (r *SurfaceRegistry) Register(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	return r.cli.Set(ctx, aliveKey(sessionID), "1", ttl)
}

func (r *SurfaceRegistry) Refresh(ctx context.Context, sessionID string) error {
	return r.cli.Set(ctx, aliveKey(sessionID), "1", r.ttl)
}

func (r *SurfaceRegistry) Alive(ctx context.Context, sessionID string) (bool, error) {
	return r.cli.Exists(ctx, aliveKey(sessionID))
}

func (r *SurfaceRegistry) SetRedirectURL(ctx context.Context, sessionID, url string) error {
	return r.cli.Set(ctx, redirectKey(sessionID), url, r.stateTTL)
}

func (r *SurfaceRegistry) RedirectURL(ctx context.Context, sessionID string) (string, error) {
	v, err := r.cli.Get(ctx, redirectKey(sessionID))
	if err != nil {
		if IsNil(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (r *SurfaceRegistry) SetFinalState(ctx context.Context, sessionID string, res model.Resolution) error {
	return r.cli.Set(ctx, finalKey(sessionID), string(res), r.stateTTL)
}

func (r *SurfaceRegistry) FinalState(ctx context.Context, sessionID string) (model.Resolution, error) {
	v, err := r.cli.Get(ctx, finalKey(sessionID))
	if err != nil {
		if IsNil(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return model.Resolution(v), nil
}

func (r *SurfaceRegistry) Close(ctx context.Context, sessionID string) error {
	return r.cli.Del(ctx, aliveKey(sessionID), redirectKey(sessionID))
}
