package usecase

import (
	"context"
	"time"

	"github.com/allisson/cas/internal/authn/domain"
	"github.com/allisson/cas/internal/metrics"
)

const metricsDomain = "authn"

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// authenticationUseCaseWithMetrics decorates AuthenticationUseCase with metrics instrumentation.
type authenticationUseCaseWithMetrics struct {
	next    AuthenticationUseCase
	metrics metrics.BusinessMetrics
}

// NewAuthenticationUseCaseWithMetrics wraps an AuthenticationUseCase with metrics recording.
// Failed logins are recorded with status "failure" so they can be told apart from errors.
func NewAuthenticationUseCaseWithMetrics(useCase AuthenticationUseCase, m metrics.BusinessMetrics) AuthenticationUseCase {
	return &authenticationUseCaseWithMetrics{next: useCase, metrics: m}
}

func (a *authenticationUseCaseWithMetrics) Authenticate(
	ctx context.Context,
	req *domain.LoginRequest,
) (*domain.Authentication, error) {
	start := time.Now()
	result, err := a.next.Authenticate(ctx, req)

	status := statusOf(err)
	if err != nil && domain.FailureKind(err) != "error" {
		status = "failure"
	}

	a.metrics.RecordOperation(ctx, metricsDomain, "authenticate", status)
	a.metrics.RecordDuration(ctx, metricsDomain, "authenticate", time.Since(start), status)

	if result != nil {
		for _, success := range result.Successes {
			a.metrics.RecordHandlerResult(ctx, success.Handler, "success")
		}
		for _, failure := range result.Failures {
			a.metrics.RecordHandlerResult(ctx, failure.Handler, domain.FailureKind(failure.Err))
		}
	}

	return result, err
}

// authenticationEventUseCaseWithMetrics decorates AuthenticationEventUseCase with metrics instrumentation.
type authenticationEventUseCaseWithMetrics struct {
	next    AuthenticationEventUseCase
	metrics metrics.BusinessMetrics
}

// NewAuthenticationEventUseCaseWithMetrics wraps an AuthenticationEventUseCase with metrics recording.
func NewAuthenticationEventUseCaseWithMetrics(
	useCase AuthenticationEventUseCase,
	m metrics.BusinessMetrics,
) AuthenticationEventUseCase {
	return &authenticationEventUseCaseWithMetrics{next: useCase, metrics: m}
}

func (a *authenticationEventUseCaseWithMetrics) List(
	ctx context.Context,
	offset, limit int,
	createdAtFrom, createdAtTo *time.Time,
) ([]*domain.AuthenticationEvent, error) {
	start := time.Now()
	events, err := a.next.List(ctx, offset, limit, createdAtFrom, createdAtTo)

	status := statusOf(err)
	a.metrics.RecordOperation(ctx, metricsDomain, "authentication_event_list", status)
	a.metrics.RecordDuration(ctx, metricsDomain, "authentication_event_list", time.Since(start), status)

	return events, err
}

func (a *authenticationEventUseCaseWithMetrics) DeleteOlderThan(
	ctx context.Context,
	days int,
	dryRun bool,
) (int64, error) {
	start := time.Now()
	count, err := a.next.DeleteOlderThan(ctx, days, dryRun)

	status := statusOf(err)
	a.metrics.RecordOperation(ctx, metricsDomain, "authentication_event_delete", status)
	a.metrics.RecordDuration(ctx, metricsDomain, "authentication_event_delete", time.Since(start), status)

	return count, err
}

func (a *authenticationEventUseCaseWithMetrics) VerifyBatch(
	ctx context.Context,
	startTime, endTime time.Time,
) (*domain.AuthenticationEventVerification, error) {
	start := time.Now()
	report, err := a.next.VerifyBatch(ctx, startTime, endTime)

	status := statusOf(err)
	a.metrics.RecordOperation(ctx, metricsDomain, "authentication_event_verify_batch", status)
	a.metrics.RecordDuration(ctx, metricsDomain, "authentication_event_verify_batch", time.Since(start), status)

	return report, err
}

// realmUserUseCaseWithMetrics decorates RealmUserUseCase with metrics instrumentation.
type realmUserUseCaseWithMetrics struct {
	next    RealmUserUseCase
	metrics metrics.BusinessMetrics
}

// NewRealmUserUseCaseWithMetrics wraps a RealmUserUseCase with metrics recording.
func NewRealmUserUseCaseWithMetrics(useCase RealmUserUseCase, m metrics.BusinessMetrics) RealmUserUseCase {
	return &realmUserUseCaseWithMetrics{next: useCase, metrics: m}
}

func (r *realmUserUseCaseWithMetrics) Create(
	ctx context.Context,
	realm, username, password string,
) (*domain.RealmUser, error) {
	start := time.Now()
	user, err := r.next.Create(ctx, realm, username, password)

	status := statusOf(err)
	r.metrics.RecordOperation(ctx, metricsDomain, "realm_user_create", status)
	r.metrics.RecordDuration(ctx, metricsDomain, "realm_user_create", time.Since(start), status)

	return user, err
}
