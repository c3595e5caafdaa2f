package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// User is a row in the users table.
type User struct {
	ID                   uuid.UUID
	Email                string
	PasswordHash         string
	Name                 string
	PracticeName         sql.NullString
	Phone                sql.NullString
	Locale               sql.NullString
	PaymentProvider      sql.NullString
	StripeCustomerID     sql.NullString
	EcpayMerchantTradeNo sql.NullString
	SubscriptionStatus   string
	SubscriptionTier     string
	SubscriptionID       sql.NullString
	EmailVerified        bool
	EmailVerifiedAt      sql.NullTime
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AuthSession is a row in the auth_sessions table.
type AuthSession struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// EmailToken is a row in the email_tokens table.
type EmailToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	Purpose    string
	ExpiresAt  time.Time
	ConsumedAt sql.NullTime
	CreatedAt  time.Time
}

// Client is a row in the clients table.
type Client struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Email     sql.NullString
	Phone     sql.NullString
	Timezone  sql.NullString
	Goals     sql.NullString
	Notes     sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CoachingSession is a row in the coaching_sessions table.
type CoachingSession struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	ClientID            uuid.NullUUID
	Title               string
	SessionDate         time.Time
	DurationMinutes     int32
	Notes               sql.NullString
	AudioKey            sql.NullString
	AudioBytes          sql.NullInt64
	TranscriptionStatus string
	Analysis            pqtype.NullRawMessage
	AnalyzedAt          sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TranscriptSegment is a row in the transcript_segments table.
type TranscriptSegment struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	SegmentIndex int32
	StartMs      int64
	EndMs        int64
	SpeakerLabel sql.NullString
	SpeakerRole  string
	Text         string
	CreatedAt    time.Time
}

// UsageRecord is a row in the usage_records table.
type UsageRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Kind       string
	Amount     int64
	RecordedAt time.Time
}

// UsageSummary is a row in the usage_summaries table.
type UsageSummary struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	PeriodStart          time.Time
	Sessions             int64
	Transcriptions       int64
	TranscriptionMinutes int64
	Analyses             int64
	ClosedAt             time.Time
}

// Job is a row in the jobs table.
type Job struct {
	ID           uuid.UUID
	JobType      string
	Payload      []byte
	Status       string
	Priority     int32
	Attempts     int32
	MaxAttempts  int32
	ScheduledAt  time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	ErrorMessage sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PaymentEvent is a row in the payment_events table.
type PaymentEvent struct {
	ID              uuid.UUID
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         pqtype.NullRawMessage
	ReceivedAt      time.Time
}
