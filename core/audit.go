package core

import (
	"context"

	"github.com/sirupsen/logrus"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// LoginMethodPKCE labels logins completed through the PKCE redirect flow.
const LoginMethodPKCE = "ocid_pkce"

// AuthEventLogger records authentication events to an external sink.
// Implementations should be non-blocking and best-effort.
type AuthEventLogger interface {
	LogLogin(ctx context.Context, subject, ocid, issuer, method, tokenID string) error
}

// LogrusAuditLogger writes login events as structured log lines.
type LogrusAuditLogger struct {
	Log logrus.FieldLogger
}

func (l LogrusAuditLogger) LogLogin(_ context.Context, subject, ocid, issuer, method, tokenID string) error {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{
		"event":  "login",
		"sub":    subject,
		"ocid":   ocid,
		"iss":    issuer,
		"method": method,
		"jti":    tokenID,
	}).Info("auth event")
	return nil
}

func auditHook(a AuthEventLogger, log logrus.FieldLogger) func(context.Context, *oidckit.AuthState) {
	return func(ctx context.Context, s *oidckit.AuthState) {
		err := a.LogLogin(ctx, s.Subject(), s.OCID(), s.Claims.String("iss"), LoginMethodPKCE, s.Claims.String("jti"))
		if err != nil {
			log.WithError(err).Warn("audit log failed")
		}
	}
}
