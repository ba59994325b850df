package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type verificationRecord struct {
	bun.BaseModel `bun:"table:recaptcha_verifications,alias:rv"`

	ID          string         `bun:"id,pk"`
	Transport   string         `bun:"transport,notnull"`
	RemoteIP    string         `bun:"remote_ip,notnull"`
	Valid       bool           `bun:"valid,notnull"`
	Success     bool           `bun:"success,notnull"`
	ErrorCodes  []string       `bun:"error_codes,type:jsonb,notnull"`
	Hostname    string         `bun:"hostname,notnull"`
	Action      string         `bun:"action,notnull"`
	Score       *float64       `bun:"score"`
	ChallengeTS string         `bun:"challenge_ts,notnull"`
	Constraints map[string]any `bun:"constraints,type:jsonb,notnull"`
	DurationMS  int64          `bun:"duration_ms,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
