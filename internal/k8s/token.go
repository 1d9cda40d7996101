package k8s

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/clusterforge/kubegrant/internal/logging"
)

// TokenIssuer obtains a bound, time-limited bearer token for a
// ServiceAccount. It tries the TokenRequest subresource first and falls back
// to a legacy service-account-token Secret when the primary path fails, for
// clusters whose API server predates TokenRequest.
type TokenIssuer struct {
	client TokenManager

	// settleDelay is the single fixed wait between creating the fallback
	// Secret and reading it back. There is no poll loop: if the token
	// controller has not populated the Secret after one delay, issuance fails.
	settleDelay time.Duration

	// sleep is replaceable so tests do not wait out the settle delay.
	sleep func(time.Duration)

	logger Logger
}

// NewTokenIssuer creates a TokenIssuer over the given token primitives.
// A zero settleDelay selects the default.
func NewTokenIssuer(client TokenManager, settleDelay time.Duration, logger Logger) *TokenIssuer {
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &TokenIssuer{
		client:      client,
		settleDelay: settleDelay,
		sleep:       time.Sleep,
		logger:      logger,
	}
}

// Issue returns a bearer token for the named ServiceAccount. The two paths
// are mutually exclusive per call: the fallback runs only after the primary
// fails, and once it does, only the fallback's own failure is surfaced.
func (ti *TokenIssuer) Issue(ctx context.Context, serviceAccountName, namespace string, audiences []string, ttlSeconds int64) (string, error) {
	token, err := ti.client.RequestToken(ctx, serviceAccountName, namespace, audiences, ttlSeconds)
	if err == nil {
		if ti.logger != nil {
			ti.logger.Debug("token issued",
				"path", "token-request",
				"serviceaccount", serviceAccountName,
				"token", logging.SanitizeToken(token),
			)
		}
		return token, nil
	}

	if ti.logger != nil {
		ti.logger.Debug("token request failed, attempting secret fallback",
			"serviceaccount", serviceAccountName,
			"namespace", namespace,
			"error", err,
		)
	}

	return ti.issueViaSecret(ctx, serviceAccountName, namespace)
}

// issueViaSecret creates an annotated service-account-token Secret, waits
// one settle delay for the token controller, and reads the token back.
func (ti *TokenIssuer) issueViaSecret(ctx context.Context, serviceAccountName, namespace string) (string, error) {
	secret, err := ti.client.CreateTokenSecret(ctx, serviceAccountName, namespace)
	if err != nil {
		return "", tokenIssuanceError("create token secret", err)
	}

	ti.sleep(ti.settleDelay)

	populated, err := ti.client.GetSecret(ctx, secret.Name, namespace)
	if err != nil {
		return "", tokenIssuanceError("read back token secret", err)
	}

	// Secret data arrives already decoded from the API's base64 encoding.
	data, ok := populated.Data[corev1.ServiceAccountTokenKey]
	if !ok || len(data) == 0 {
		return "", &APIError{
			Kind:   ErrKindTokenIssuance,
			Op:     "issue-token",
			Reason: "token controller did not populate the secret within the settle delay",
		}
	}

	if ti.logger != nil {
		ti.logger.Debug("token issued",
			"path", "secret-fallback",
			"serviceaccount", serviceAccountName,
			"token", logging.SanitizeToken(string(data)),
		)
	}

	return string(data), nil
}

// tokenIssuanceError wraps a fallback-path failure, preserving the upstream
// status of the step that failed.
func tokenIssuanceError(step string, err error) *APIError {
	wrapped := &APIError{
		Kind:   ErrKindTokenIssuance,
		Op:     "issue-token",
		Reason: step + " failed",
		err:    err,
	}
	if apiErr, ok := AsAPIError(err); ok {
		wrapped.Status = apiErr.Status
		wrapped.Body = apiErr.Body
	}
	return wrapped
}
