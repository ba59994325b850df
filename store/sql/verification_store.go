package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-recaptcha/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultPerPage = 25

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// VerificationLogStore is the audit log of verification outcomes. Tokens and
// secrets are never stored.
type VerificationLogStore struct {
	db   *bun.DB
	repo repository.Repository[*verificationRecord]
}

func NewVerificationLogStore(db *bun.DB) (*VerificationLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*verificationRecord](db, verificationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid verification repository wiring: %w", err)
		}
	}
	return &VerificationLogStore{db: db, repo: repo}, nil
}

// NewVerificationLogStoreFromPersistence accepts a *bun.DB or anything with a
// DB() *bun.DB method, such as a go-persistence-bun client.
func NewVerificationLogStoreFromPersistence(client any) (*VerificationLogStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewVerificationLogStore(db)
}

func (s *VerificationLogStore) DB() *bun.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *VerificationLogStore) RecordVerification(ctx context.Context, entry core.VerificationRecord) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: verification store is not configured")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	transport := strings.TrimSpace(entry.Transport)
	if transport == "" {
		transport = "unknown"
	}

	record := &verificationRecord{
		ID:          id,
		Transport:   transport,
		RemoteIP:    strings.TrimSpace(entry.RemoteIP),
		Valid:       entry.Valid,
		Success:     entry.Success,
		ErrorCodes:  append([]string{}, entry.ErrorCodes...),
		Hostname:    strings.TrimSpace(entry.Hostname),
		Action:      strings.TrimSpace(entry.Action),
		ChallengeTS: strings.TrimSpace(entry.ChallengeTS),
		Constraints: copyAnyMap(entry.Constraints),
		DurationMS:  entry.DurationMS,
		CreatedAt:   createdAt,
	}
	if entry.Score != nil {
		score := *entry.Score
		record.Score = &score
	}

	_, err := s.repo.Create(ctx, record)
	return err
}

// ListVerifications returns records newest first. Page and PerPage default to
// 1 and 25.
func (s *VerificationLogStore) ListVerifications(ctx context.Context, filter core.VerificationFilter) (core.VerificationPage, error) {
	if s == nil || s.repo == nil {
		return core.VerificationPage{}, fmt.Errorf("sqlstore: verification store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if remoteIP := strings.TrimSpace(filter.RemoteIP); remoteIP != "" {
		selectors = append(selectors, repository.SelectBy("remote_ip", "=", remoteIP))
	}
	if hostname := strings.TrimSpace(filter.Hostname); hostname != "" {
		selectors = append(selectors, repository.SelectBy("hostname", "=", hostname))
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		selectors = append(selectors, repository.SelectBy("action", "=", action))
	}
	if filter.Valid != nil {
		valid := *filter.Valid
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.valid = ?", valid)
		}))
	}
	if code := strings.TrimSpace(filter.ErrorCode); code != "" {
		// error_codes is a JSON array of strings; match the quoted element.
		element, err := json.Marshal(code)
		if err != nil {
			return core.VerificationPage{}, fmt.Errorf("sqlstore: encode error code filter: %w", err)
		}
		pattern := "%" + likeEscaper.Replace(string(element)) + "%"
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where(`CAST(?TableAlias.error_codes AS TEXT) LIKE ? ESCAPE '\'`, pattern)
		}))
	}
	if filter.From != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", ">=", filter.From.UTC()))
	}
	if filter.To != nil {
		selectors = append(selectors, repository.SelectByTimetz("created_at", "<=", filter.To.UTC()))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.VerificationPage{}, err
	}
	items := make([]core.VerificationRecord, 0, len(records))
	for _, record := range records {
		items = append(items, verificationRecordToDomain(record))
	}
	return core.VerificationPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasNext: offset+len(items) < total,
	}, nil
}

// PruneVerifications deletes records created before the cutoff.
func (s *VerificationLogStore) PruneVerifications(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: verification store is not configured")
	}
	if before.IsZero() {
		return 0, fmt.Errorf("sqlstore: prune cutoff is required")
	}
	res, err := s.db.NewDelete().
		Model((*verificationRecord)(nil)).
		Where("created_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func verificationRecordToDomain(record *verificationRecord) core.VerificationRecord {
	if record == nil {
		return core.VerificationRecord{}
	}
	out := core.VerificationRecord{
		ID:          record.ID,
		Transport:   record.Transport,
		RemoteIP:    record.RemoteIP,
		Valid:       record.Valid,
		Success:     record.Success,
		ErrorCodes:  append([]string{}, record.ErrorCodes...),
		Hostname:    record.Hostname,
		Action:      record.Action,
		ChallengeTS: record.ChallengeTS,
		Constraints: copyAnyMap(record.Constraints),
		DurationMS:  record.DurationMS,
		CreatedAt:   record.CreatedAt.UTC(),
	}
	if record.Score != nil {
		score := *record.Score
		out.Score = &score
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
