package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"djassa/internal/core"
)

// Session is a persisted login. Only the token hash is stored.
type Session struct {
	ID        string
	ShopID    string
	TokenHash string
	IP        string
	UserAgent string
	ExpiresAt time.Time
	Revoked   bool
}

const shopColumns = `id, name, phone, pin_hash, failed_login_attempts, locked_until, plan, features_json,
	last_login_at, last_login_ip, active, created_at`

func scanShop(row interface{ Scan(...any) error }) (core.Shop, error) {
	var (
		s            core.Shop
		lockedUntil  sql.NullInt64
		lastLoginAt  sql.NullInt64
		lastLoginIP  sql.NullString
		plan         string
		featuresJSON string
		active       int
		createdAt    int64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Phone, &s.PINHash, &s.FailedAttempts, &lockedUntil, &plan,
		&featuresJSON, &lastLoginAt, &lastLoginIP, &active, &createdAt); err != nil {
		return core.Shop{}, err
	}
	s.Plan = core.Plan(plan)
	s.Features = core.PlanFeatures(s.Plan)
	if featuresJSON != "" && featuresJSON != "{}" {
		if err := json.Unmarshal([]byte(featuresJSON), &s.Features); err != nil {
			slog.Warn("Invalid features_json, using plan presets", "shop_id", s.ID, "error", err)
		}
	}
	s.LockedUntil = fromNullUnix(lockedUntil)
	s.LastLoginAt = fromNullUnix(lastLoginAt)
	s.LastLoginIP = lastLoginIP.String
	s.Active = active == 1
	s.CreatedAt = fromUnix(createdAt)
	return s, nil
}

// CreateShop inserts a shop and its first session atomically.
func (r *SQLiteRepository) CreateShop(ctx context.Context, shop core.Shop, sess Session, meta AuditMeta) (core.Shop, error) {
	now := time.Now().UTC()
	if shop.ID == "" {
		shop.ID = NewID()
	}
	if shop.Plan == "" {
		shop.Plan = core.PlanFree
	}
	shop.Features = core.PlanFeatures(shop.Plan)
	features, err := json.Marshal(shop.Features)
	if err != nil {
		return core.Shop{}, fmt.Errorf("marshal features: %w", err)
	}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO shops (id, name, phone, pin_hash, plan, features_json, last_login_at, last_login_ip, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			shop.ID, shop.Name, shop.Phone, shop.PINHash, string(shop.Plan), string(features),
			unix(now), nullString(meta.IP), unix(now), unix(now))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("phone already registered: %w", core.ErrConflict)
			}
			return fmt.Errorf("insert shop: %w", err)
		}
		sess.ShopID = shop.ID
		if err := insertSession(ctx, tx, sess, now); err != nil {
			return err
		}
		return insertAudit(ctx, tx, shop.ID, meta.action("signup"), "shops", shop.ID, meta.IP, nil,
			map[string]any{"name": shop.Name, "phone": shop.Phone}, now)
	})
	if err != nil {
		return core.Shop{}, err
	}

	slog.InfoContext(ctx, "Shop created", "shop_id", shop.ID, "plan", shop.Plan)
	shop.Active = true
	shop.CreatedAt = now
	shop.LastLoginAt = now
	shop.LastLoginIP = meta.IP
	return shop, nil
}

// GetShopByPhone returns a non-deleted shop by phone number.
func (r *SQLiteRepository) GetShopByPhone(ctx context.Context, phone string) (core.Shop, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+shopColumns+` FROM shops WHERE phone = ? AND deleted_at IS NULL`, phone)
	s, err := scanShop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Shop{}, core.ErrNotFound
	}
	if err != nil {
		return core.Shop{}, fmt.Errorf("get shop by phone: %w", err)
	}
	return s, nil
}

// GetShop returns an active, non-deleted shop.
func (r *SQLiteRepository) GetShop(ctx context.Context, id string) (core.Shop, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+shopColumns+` FROM shops WHERE id = ? AND active = 1 AND deleted_at IS NULL`, id)
	s, err := scanShop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Shop{}, core.ErrNotFound
	}
	if err != nil {
		return core.Shop{}, fmt.Errorf("get shop: %w", err)
	}
	return s, nil
}

// RecordFailedLogin stores the failed-attempt counter and an optional lock deadline.
func (r *SQLiteRepository) RecordFailedLogin(ctx context.Context, shopID string, attempts int, lockedUntil time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE shops SET failed_login_attempts = ?, locked_until = ?, updated_at = ? WHERE id = ?`,
		attempts, nullUnix(lockedUntil), unix(time.Now()), shopID)
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	return nil
}

// RecordLogin resets the lockout state, stamps the login and stores the new session.
func (r *SQLiteRepository) RecordLogin(ctx context.Context, shopID string, sess Session, meta AuditMeta) error {
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE shops SET failed_login_attempts = 0, locked_until = NULL, last_login_at = ?, last_login_ip = ?, updated_at = ?
			WHERE id = ?`, unix(now), nullString(meta.IP), unix(now), shopID)
		if err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		sess.ShopID = shopID
		if err := insertSession(ctx, tx, sess, now); err != nil {
			return err
		}
		return insertAudit(ctx, tx, shopID, meta.action("login"), "shops", shopID, meta.IP, nil, nil, now)
	})
}

func insertSession(ctx context.Context, ex execer, s Session, now time.Time) error {
	if s.ID == "" {
		s.ID = NewID()
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO sessions (id, shop_id, token_hash, ip_address, user_agent, expires_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		s.ID, s.ShopID, s.TokenHash, nullString(s.IP), nullString(s.UserAgent), unix(s.ExpiresAt), unix(now))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetActiveSession returns a non-revoked, unexpired session by token hash.
func (r *SQLiteRepository) GetActiveSession(ctx context.Context, tokenHash string, now time.Time) (Session, error) {
	var (
		s         Session
		ip, ua    sql.NullString
		expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, shop_id, token_hash, ip_address, user_agent, expires_at
		FROM sessions WHERE token_hash = ? AND revoked = 0 AND expires_at > ?`,
		tokenHash, unix(now)).Scan(&s.ID, &s.ShopID, &s.TokenHash, &ip, &ua, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, core.ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	s.IP = ip.String
	s.UserAgent = ua.String
	s.ExpiresAt = fromUnix(expiresAt)
	return s, nil
}

// RevokeSession marks the session with the given token hash as revoked.
func (r *SQLiteRepository) RevokeSession(ctx context.Context, shopID, tokenHash string, meta AuditMeta) error {
	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET revoked = 1 WHERE token_hash = ? AND shop_id = ? AND revoked = 0`, tokenHash, shopID)
		if err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
		if affected(res) == 0 {
			return core.ErrNotFound
		}
		return insertAudit(ctx, tx, shopID, meta.action("logout"), "sessions", shortRef(tokenHash), meta.IP, nil, nil, now)
	})
}

// PurgeSessions deletes sessions that expired or were revoked before the cutoff.
func (r *SQLiteRepository) PurgeSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ? OR (revoked = 1 AND created_at < ?)`, unix(cutoff), unix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return affected(res), nil
}

func shortRef(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
