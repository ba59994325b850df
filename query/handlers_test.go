package query

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-recaptcha/core"
)

type stubTokenChecker struct {
	result core.Result
	calls  int
}

func (s *stubTokenChecker) Verify(context.Context, string, string, core.Constraints) core.Result {
	s.calls++
	return s.result
}

type stubLogReader struct {
	page   core.VerificationPage
	err    error
	filter core.VerificationFilter
}

func (s *stubLogReader) ListVerifications(_ context.Context, filter core.VerificationFilter) (core.VerificationPage, error) {
	s.filter = filter
	return s.page, s.err
}

func TestCheckTokenQuery_ReturnsInvalidResultWithoutError(t *testing.T) {
	checker := &stubTokenChecker{result: core.Result{ErrorCodes: []string{core.ErrorInvalidJSON}}}
	result, err := NewCheckTokenQuery(checker).Query(context.Background(), CheckTokenMessage{Token: "tok"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !result.HasError(core.ErrorInvalidJSON) || checker.calls != 1 {
		t.Fatalf("unexpected result %v after %d calls", result.Errors(), checker.calls)
	}
}

func TestCheckTokenQuery_RealVerifier(t *testing.T) {
	verifier, err := core.NewVerifier(core.Config{Secret: "secret"},
		core.WithTransport(core.TransportFunc(func(context.Context, core.SiteVerifyRequest) ([]byte, error) {
			return []byte(`{"success":true,"score":0.2}`), nil
		})),
	)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	result, err := NewCheckTokenQuery(verifier).Query(context.Background(), CheckTokenMessage{
		Token:       "tok",
		Constraints: core.NewConstraints().WithThreshold(0.5),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !result.HasError(core.ErrorScoreThresholdNotMet) {
		t.Fatalf("expected threshold failure, got %v", result.Errors())
	}
}

func TestListVerificationsQuery(t *testing.T) {
	valid := true
	reader := &stubLogReader{page: core.VerificationPage{
		Items: []core.VerificationRecord{{ID: "rec_1", Valid: true}},
		Page:  1, PerPage: 10, Total: 1,
	}}
	page, err := NewListVerificationsQuery(reader).Query(context.Background(), ListVerificationsMessage{
		Filter: core.VerificationFilter{Valid: &valid, Page: 1, PerPage: 10},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "rec_1" {
		t.Fatalf("unexpected page %#v", page)
	}
	if reader.filter.Valid == nil || !*reader.filter.Valid {
		t.Fatalf("expected filter to be forwarded")
	}

	reader.err = errors.New("db down")
	if _, err := NewListVerificationsQuery(reader).Query(context.Background(), ListVerificationsMessage{}); err == nil {
		t.Fatalf("expected reader error")
	}
}

func TestListVerificationsMessage_Validate(t *testing.T) {
	from := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	cases := []ListVerificationsMessage{
		{Filter: core.VerificationFilter{Page: -1}},
		{Filter: core.VerificationFilter{PerPage: -1}},
		{Filter: core.VerificationFilter{From: &from, To: &to}},
	}
	for _, msg := range cases {
		err := msg.Validate()
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) || rich.TextCode != core.RecaptchaErrorBadInput {
			t.Fatalf("expected bad input envelope for %#v, got %v", msg.Filter, err)
		}
	}
}

func TestQueries_NilDependencies(t *testing.T) {
	if _, err := (*CheckTokenQuery)(nil).Query(context.Background(), CheckTokenMessage{}); err == nil {
		t.Fatalf("expected nil checker error")
	}
	if _, err := NewListVerificationsQuery(nil).Query(context.Background(), ListVerificationsMessage{}); err == nil {
		t.Fatalf("expected nil reader error")
	}
}
