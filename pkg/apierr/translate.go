package apierr

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/tenantkit/pkg/lease"
	"github.com/dmitrymomot/tenantkit/pkg/logger"
	"github.com/dmitrymomot/tenantkit/pkg/partition"
	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// Links are the self-remediation targets attached to billing and capability failures.
type Links struct {
	UpgradeURL string `env:"LINKS_UPGRADE_URL" envDefault:"https://app.example.com/settings/billing/upgrade"`
	BillingURL string `env:"LINKS_BILLING_URL" envDefault:"https://app.example.com/settings/billing"`
	SupportURL string `env:"LINKS_SUPPORT_URL" envDefault:"https://app.example.com/support"`
}

// Translator maps domain errors to client-facing Errors.
type Translator struct {
	links Links
}

// NewTranslator creates a Translator.
func NewTranslator(links Links) *Translator {
	return &Translator{links: links}
}

// Translate maps err to an Error. Unknown errors become a generic INTERNAL error; the original
// error is kept as the unexported cause for logging.
func (t *Translator) Translate(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var (
		trialErr   *tenant.TrialExpiredError
		featureErr *tenant.FeatureError
		limitErr   *tenant.LimitError
		roleErr    *tenant.RoleError
	)

	var e *Error
	switch {
	case errors.Is(err, tenant.ErrNoOrganizationContext):
		e = New(http.StatusForbidden, CodeNoOrganizationContext, "The request carries no organization context.")
	case errors.Is(err, tenant.ErrMissingUser):
		e = New(http.StatusUnauthorized, CodeUnauthenticated, "The request is not authenticated.")
	case errors.Is(err, tenant.ErrTenantNotFound):
		e = New(http.StatusNotFound, CodeTenantNotFound, "No account exists for this organization.")
	case errors.Is(err, tenant.ErrTenantDeleted):
		e = New(http.StatusGone, CodeTenantDeleted, "This account has been deleted.").
			WithRemediation(t.links.SupportURL)

	case errors.Is(err, tenant.ErrAccountSuspended):
		e = New(http.StatusForbidden, CodeAccountSuspended, "This account is suspended.").
			WithRemediation(t.links.BillingURL)
	case errors.Is(err, tenant.ErrAccountCancelled):
		e = New(http.StatusForbidden, CodeAccountCancelled, "This account's subscription was cancelled.").
			WithRemediation(t.links.BillingURL)
	case errors.As(err, &trialErr):
		e = New(http.StatusPaymentRequired, CodeTrialExpired, "The trial period has ended.").
			WithRemediation(t.links.UpgradeURL).
			WithDetails(map[string]any{"trialEndedAt": trialErr.EndedAt.UTC().Format(time.RFC3339)})
	case errors.Is(err, tenant.ErrTrialExpired):
		e = New(http.StatusPaymentRequired, CodeTrialExpired, "The trial period has ended.").
			WithRemediation(t.links.UpgradeURL)
	case errors.Is(err, tenant.ErrAccountReadOnly):
		e = New(http.StatusForbidden, CodeAccountReadOnly, "This account is read-only until the outstanding balance is paid.").
			WithRemediation(t.links.BillingURL)

	case errors.As(err, &featureErr):
		e = New(http.StatusForbidden, CodeFeatureNotAvailable, "This feature is not included in the current plan.").
			WithRemediation(t.links.UpgradeURL).
			WithDetails(map[string]any{"feature": string(featureErr.Feature)})
	case errors.Is(err, tenant.ErrFeatureNotAvailable):
		e = New(http.StatusForbidden, CodeFeatureNotAvailable, "This feature is not included in the current plan.").
			WithRemediation(t.links.UpgradeURL)
	case errors.As(err, &limitErr):
		e = New(http.StatusForbidden, CodeLimitReached, "The plan limit for this resource has been reached.").
			WithRemediation(t.links.UpgradeURL).
			WithDetails(map[string]any{
				"resource": string(limitErr.Resource),
				"limit":    limitErr.Limit,
				"current":  limitErr.Current,
			})
	case errors.Is(err, tenant.ErrLimitReached):
		e = New(http.StatusForbidden, CodeLimitReached, "The plan limit for this resource has been reached.").
			WithRemediation(t.links.UpgradeURL)
	case errors.As(err, &roleErr):
		e = New(http.StatusForbidden, CodeInsufficientPermissions, "Your role does not permit this action.").
			WithDetails(map[string]any{"requiredRole": roleErr.Required.String()})
	case errors.Is(err, tenant.ErrInsufficientPermissions):
		e = New(http.StatusForbidden, CodeInsufficientPermissions, "Your role does not permit this action.")

	case errors.Is(err, lease.ErrAcquireTimeout):
		e = New(http.StatusServiceUnavailable, CodeConnectionLeaseTimeout, "The service is temporarily unavailable. Retry shortly.")
	case errors.Is(err, partition.ErrBindFailed), errors.Is(err, partition.ErrInvalidName):
		e = New(http.StatusInternalServerError, CodeSchemaBindFailure, "The request could not be processed.")
	case errors.Is(err, context.Canceled):
		e = New(StatusClientClosedRequest, CodeRequestCancelled, "The request was cancelled.")
	case errors.Is(err, context.DeadlineExceeded):
		e = New(http.StatusGatewayTimeout, CodeRequestTimeout, "The request took too long to complete.")

	default:
		e = New(http.StatusInternalServerError, CodeInternal, "The request could not be processed.")
	}

	return e.WithCause(err)
}

// ErrorHandler renders a failure for an HTTP request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Handler returns an ErrorHandler that translates err, logs server-side failures with their
// full cause and writes the uniform body.
func (t *Translator) Handler(log *slog.Logger) ErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request, err error) {
		e := t.Translate(err)
		switch {
		case e.Status >= http.StatusInternalServerError:
			log.ErrorContext(r.Context(), "request failed",
				logger.ErrorCode(e.Code), logger.Error(err),
				slog.String("method", r.Method), slog.String("path", r.URL.Path))
		default:
			log.DebugContext(r.Context(), "request rejected",
				logger.ErrorCode(e.Code), logger.Error(err))
		}
		Write(w, e)
	}
}

// Default renders errors with no remediation links and the default logger.
func Default(w http.ResponseWriter, r *http.Request, err error) {
	NewTranslator(Links{}).Handler(nil)(w, r, err)
}
