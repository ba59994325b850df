package query

import (
	"context"

	"github.com/goliatone/go-recaptcha/core"
)

type TokenChecker interface {
	Verify(ctx context.Context, token string, remoteIP string, constraints core.Constraints) core.Result
}

type VerificationLogReader interface {
	ListVerifications(ctx context.Context, filter core.VerificationFilter) (core.VerificationPage, error)
}

type CheckTokenQuery struct {
	checker TokenChecker
}

func NewCheckTokenQuery(checker TokenChecker) *CheckTokenQuery {
	return &CheckTokenQuery{checker: checker}
}

func (q *CheckTokenQuery) Query(ctx context.Context, msg CheckTokenMessage) (core.Result, error) {
	if q == nil || q.checker == nil {
		return core.Result{}, queryDependencyError("query: token checker is required")
	}
	return q.checker.Verify(ctx, msg.Token, msg.RemoteIP, msg.Constraints), nil
}

type ListVerificationsQuery struct {
	reader VerificationLogReader
}

func NewListVerificationsQuery(reader VerificationLogReader) *ListVerificationsQuery {
	return &ListVerificationsQuery{reader: reader}
}

func (q *ListVerificationsQuery) Query(ctx context.Context, msg ListVerificationsMessage) (core.VerificationPage, error) {
	if q == nil || q.reader == nil {
		return core.VerificationPage{}, queryDependencyError("query: verification log reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.VerificationPage{}, err
	}
	return q.reader.ListVerifications(ctx, msg.Filter)
}
