package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, name, practice_name, phone, locale,
	payment_provider, stripe_customer_id, ecpay_merchant_trade_no,
	subscription_status, subscription_tier, subscription_id,
	email_verified, email_verified_at, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Name,
		&u.PracticeName,
		&u.Phone,
		&u.Locale,
		&u.PaymentProvider,
		&u.StripeCustomerID,
		&u.EcpayMerchantTradeNo,
		&u.SubscriptionStatus,
		&u.SubscriptionTier,
		&u.SubscriptionID,
		&u.EmailVerified,
		&u.EmailVerifiedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

// CreateUserParams holds the inputs for CreateUser.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         string
	PracticeName sql.NullString
	Phone        sql.NullString
	Locale       sql.NullString
}

const createUser = `
INSERT INTO users (email, password_hash, name, practice_name, phone, locale)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + userColumns

// CreateUser inserts a new user and returns the created row.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.Email, arg.PasswordHash, arg.Name, arg.PracticeName, arg.Phone, arg.Locale)
	return scanUser(row)
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const getUserByStripeCustomerID = `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, customerID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByStripeCustomerID, customerID))
}

const getUserByECPayTradeNo = `SELECT ` + userColumns + ` FROM users WHERE ecpay_merchant_trade_no = $1`

func (q *Queries) GetUserByECPayTradeNo(ctx context.Context, tradeNo string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByECPayTradeNo, tradeNo))
}

// UpdateUserProfileParams holds the inputs for UpdateUserProfile.
type UpdateUserProfileParams struct {
	ID           uuid.UUID
	Name         string
	PracticeName sql.NullString
	Phone        sql.NullString
	Locale       sql.NullString
}

const updateUserProfile = `
UPDATE users
SET name = $2, practice_name = $3, phone = $4, locale = $5, updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) error {
	_, err := q.db.ExecContext(ctx, updateUserProfile,
		arg.ID, arg.Name, arg.PracticeName, arg.Phone, arg.Locale)
	return err
}

const updateUserPassword = `
UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := q.db.ExecContext(ctx, updateUserPassword, id, passwordHash)
	return err
}

const updateUserStripeCustomer = `
UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateUserStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomer, id, customerID)
	return err
}

const updateUserECPayTradeNo = `
UPDATE users SET ecpay_merchant_trade_no = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateUserECPayTradeNo(ctx context.Context, id uuid.UUID, tradeNo string) error {
	_, err := q.db.ExecContext(ctx, updateUserECPayTradeNo, id, tradeNo)
	return err
}

// UpdateUserSubscriptionParams holds the inputs for UpdateUserSubscription.
type UpdateUserSubscriptionParams struct {
	ID                 uuid.UUID
	PaymentProvider    sql.NullString
	SubscriptionStatus string
	SubscriptionTier   string
	SubscriptionID     sql.NullString
}

const updateUserSubscription = `
UPDATE users
SET payment_provider = $2, subscription_status = $3, subscription_tier = $4,
    subscription_id = $5, updated_at = now()
WHERE id = $1`

func (q *Queries) UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, updateUserSubscription,
		arg.ID, arg.PaymentProvider, arg.SubscriptionStatus, arg.SubscriptionTier, arg.SubscriptionID)
	return err
}

const setUserEmailVerified = `
UPDATE users SET email_verified = true, email_verified_at = now(), updated_at = now() WHERE id = $1`

func (q *Queries) SetUserEmailVerified(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, setUserEmailVerified, id)
	return err
}

// TierCount is one row of CountUsersByTier.
type TierCount struct {
	SubscriptionTier string
	Count            int64
}

const countUsersByTier = `
SELECT subscription_tier, count(*) FROM users GROUP BY subscription_tier`

// CountUsersByTier returns user counts per subscription tier (for metrics).
func (q *Queries) CountUsersByTier(ctx context.Context) ([]TierCount, error) {
	rows, err := q.db.QueryContext(ctx, countUsersByTier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TierCount
	for rows.Next() {
		var tc TierCount
		if err := rows.Scan(&tc.SubscriptionTier, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// =============================================================================
// Auth sessions
// =============================================================================

// CreateAuthSessionParams holds the inputs for CreateAuthSession.
type CreateAuthSessionParams struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

const createAuthSession = `
INSERT INTO auth_sessions (user_id, token_hash, expires_at)
VALUES ($1, $2, $3)
RETURNING id, user_id, token_hash, expires_at, created_at`

func (q *Queries) CreateAuthSession(ctx context.Context, arg CreateAuthSessionParams) (AuthSession, error) {
	var s AuthSession
	err := q.db.QueryRowContext(ctx, createAuthSession, arg.UserID, arg.TokenHash, arg.ExpiresAt).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

const getAuthSessionByTokenHash = `
SELECT id, user_id, token_hash, expires_at, created_at
FROM auth_sessions WHERE token_hash = $1`

func (q *Queries) GetAuthSessionByTokenHash(ctx context.Context, tokenHash string) (AuthSession, error) {
	var s AuthSession
	err := q.db.QueryRowContext(ctx, getAuthSessionByTokenHash, tokenHash).
		Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

const deleteAuthSessionByTokenHash = `DELETE FROM auth_sessions WHERE token_hash = $1`

func (q *Queries) DeleteAuthSessionByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx, deleteAuthSessionByTokenHash, tokenHash)
	return err
}

const deleteAuthSessionsByUserID = `DELETE FROM auth_sessions WHERE user_id = $1`

func (q *Queries) DeleteAuthSessionsByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteAuthSessionsByUserID, userID)
	return err
}

const deleteExpiredAuthSessions = `DELETE FROM auth_sessions WHERE expires_at < now()`

func (q *Queries) DeleteExpiredAuthSessions(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredAuthSessions)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// Email tokens
// =============================================================================

// CreateEmailTokenParams holds the inputs for CreateEmailToken.
type CreateEmailTokenParams struct {
	UserID    uuid.UUID
	TokenHash string
	Purpose   string
	ExpiresAt time.Time
}

const createEmailToken = `
INSERT INTO email_tokens (user_id, token_hash, purpose, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, token_hash, purpose, expires_at, consumed_at, created_at`

func (q *Queries) CreateEmailToken(ctx context.Context, arg CreateEmailTokenParams) (EmailToken, error) {
	var t EmailToken
	err := q.db.QueryRowContext(ctx, createEmailToken, arg.UserID, arg.TokenHash, arg.Purpose, arg.ExpiresAt).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Purpose, &t.ExpiresAt, &t.ConsumedAt, &t.CreatedAt)
	return t, err
}

const getEmailTokenByHash = `
SELECT id, user_id, token_hash, purpose, expires_at, consumed_at, created_at
FROM email_tokens
WHERE token_hash = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > now()`

func (q *Queries) GetEmailTokenByHash(ctx context.Context, tokenHash, purpose string) (EmailToken, error) {
	var t EmailToken
	err := q.db.QueryRowContext(ctx, getEmailTokenByHash, tokenHash, purpose).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.Purpose, &t.ExpiresAt, &t.ConsumedAt, &t.CreatedAt)
	return t, err
}

const consumeEmailToken = `UPDATE email_tokens SET consumed_at = now() WHERE id = $1`

func (q *Queries) ConsumeEmailToken(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, consumeEmailToken, id)
	return err
}

const deleteExpiredEmailTokens = `DELETE FROM email_tokens WHERE expires_at < now()`

func (q *Queries) DeleteExpiredEmailTokens(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredEmailTokens)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
