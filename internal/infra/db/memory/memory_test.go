//go:build !integration

package memory

import (
	"testing"

	"newspay-l402/internal/domain/ports/repository"
	"newspay-l402/internal/infra/db/storetest"
)

func TestPaymentContextRepo(t *testing.T) {
	storetest.PaymentContexts(t, func(*testing.T) repository.PaymentContextRepository {
		return NewPaymentContextRepo()
	})
}

func TestPaymentSessionRepo(t *testing.T) {
	storetest.PaymentSessions(t, func(*testing.T) repository.PaymentSessionRepository {
		return NewPaymentSessionRepo()
	})
}

func TestCredentialRepo(t *testing.T) {
	storetest.Credentials(t, func(*testing.T) repository.CredentialRepository {
		return NewCredentialRepo()
	})
}
