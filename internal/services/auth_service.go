package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"djassa/internal/auth"
	"djassa/internal/cache"
	"djassa/internal/core"
	"djassa/internal/storage"
)

// AuthConfig holds the login lockout policy.
type AuthConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// ClientInfo identifies the device behind a request.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Session is what a successful signup or login hands back to the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Shop      core.Shop
}

// AuthService handles PIN authentication and session lifecycle.
type AuthService struct {
	storage *storage.SQLiteRepository
	issuer  *auth.Issuer
	cache   cache.Cache[any]
	config  AuthConfig
	now     func() time.Time
}

func NewAuthService(storage *storage.SQLiteRepository, issuer *auth.Issuer, responses cache.Cache[any], config AuthConfig) *AuthService {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.LockDuration <= 0 {
		config.LockDuration = 15 * time.Minute
	}
	return &AuthService{
		storage: storage,
		issuer:  issuer,
		cache:   responses,
		config:  config,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Signup registers a shop on the free plan and opens its first session.
func (s *AuthService) Signup(ctx context.Context, name, phone, pin string, client ClientInfo) (Session, error) {
	name = strings.TrimSpace(name)
	if err := core.ValidateShopName(name); err != nil {
		return Session{}, err
	}
	if err := core.ValidatePhone(phone); err != nil {
		return Session{}, err
	}
	if err := core.ValidatePIN(pin); err != nil {
		return Session{}, err
	}

	hash, err := auth.HashPIN(pin)
	if err != nil {
		return Session{}, err
	}

	shop := core.Shop{ID: storage.NewID(), Name: name, Phone: phone, PINHash: hash, Plan: core.PlanFree}
	token, expiresAt, err := s.issuer.Issue(shop.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	shop, err = s.storage.CreateShop(ctx, shop, s.newSession(token, expiresAt, client), storage.AuditMeta{IP: client.IP})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, Shop: shop}, nil
}

// Login checks the PIN, applying the lockout policy on repeated failures.
func (s *AuthService) Login(ctx context.Context, phone, pin string, client ClientInfo) (Session, error) {
	shop, err := s.storage.GetShopByPhone(ctx, phone)
	if errors.Is(err, core.ErrNotFound) || (err == nil && !shop.Active) {
		return Session{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	now := s.now()
	if shop.LockedUntil.After(now) {
		return Session{}, &core.LockedError{Minutes: int(math.Ceil(shop.LockedUntil.Sub(now).Minutes()))}
	}

	if !auth.CheckPIN(shop.PINHash, pin) {
		attempts := shop.FailedAttempts + 1
		var lockedUntil time.Time
		if attempts >= s.config.MaxAttempts {
			lockedUntil = now.Add(s.config.LockDuration)
			slog.WarnContext(ctx, "Shop locked after failed logins",
				"shop_id", shop.ID,
				"attempts", attempts,
				"locked_until", lockedUntil,
				"client_ip", client.IP)
		}
		if err := s.storage.RecordFailedLogin(ctx, shop.ID, attempts, lockedUntil); err != nil {
			return Session{}, err
		}
		return Session{}, core.ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(shop.ID)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.storage.RecordLogin(ctx, shop.ID, s.newSession(token, expiresAt, client), storage.AuditMeta{IP: client.IP}); err != nil {
		return Session{}, err
	}

	shop.FailedAttempts = 0
	shop.LockedUntil = time.Time{}
	shop.LastLoginAt = now
	shop.LastLoginIP = client.IP
	return Session{Token: token, ExpiresAt: expiresAt, Shop: shop}, nil
}

// VerifyPIN re-checks the PIN of an authenticated shop before a sensitive action.
// Both outcomes are audited.
func (s *AuthService) VerifyPIN(ctx context.Context, shop core.Shop, pin, ip string) error {
	ok := auth.CheckPIN(shop.PINHash, pin)
	action := "pin_verified"
	if !ok {
		action = "failed_pin_verify"
	}
	if err := s.storage.RecordAudit(ctx, shop.ID, action, "shops", shop.ID, storage.AuditMeta{IP: ip}); err != nil {
		slog.ErrorContext(ctx, "Failed to audit PIN verification", "shop_id", shop.ID, "error", err)
	}
	if !ok {
		return core.ErrInvalidCredentials
	}
	return nil
}

// Logout revokes the session and drops every cached response of the shop.
func (s *AuthService) Logout(ctx context.Context, shopID, token, ip string) error {
	if err := s.storage.RevokeSession(ctx, shopID, auth.TokenHash(token), storage.AuditMeta{IP: ip}); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrUnauthorized
		}
		return err
	}
	if s.cache != nil {
		n := s.cache.DeletePrefix(cache.ShopPrefix(shopID))
		slog.DebugContext(ctx, "Purged shop cache on logout", "shop_id", shopID, "entries", n)
	}
	return nil
}

// Authenticate resolves a bearer token to its shop. The token must be valid,
// its session live and the shop active.
func (s *AuthService) Authenticate(ctx context.Context, token string) (core.Shop, error) {
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return core.Shop{}, core.ErrUnauthorized
	}
	sess, err := s.storage.GetActiveSession(ctx, auth.TokenHash(token), s.now())
	if errors.Is(err, core.ErrNotFound) {
		return core.Shop{}, core.ErrUnauthorized
	}
	if err != nil {
		return core.Shop{}, err
	}
	if sess.ShopID != claims.ShopID {
		return core.Shop{}, core.ErrUnauthorized
	}
	shop, err := s.storage.GetShop(ctx, sess.ShopID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Shop{}, core.ErrUnauthorized
	}
	return shop, err
}

func (s *AuthService) newSession(token string, expiresAt time.Time, client ClientInfo) storage.Session {
	return storage.Session{
		TokenHash: auth.TokenHash(token),
		IP:        client.IP,
		UserAgent: core.Truncate(client.UserAgent, 255),
		ExpiresAt: expiresAt,
	}
}
