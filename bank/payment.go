package bank

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openbanking-demos/tpp-backend/consent"
)

const paymentDateLayout = "2006-01-02"

// ApplyPayment records an authorized outgoing payment against the payer's
// account. The ledger direction rule: an outgoing payment always debits the
// debtor account, so money leaves it and the balance is reduced by the same
// amount. This is the single place the direction is decided.
func (s *Service) ApplyPayment(details *consent.PaymentDetails) error {
	if details == nil {
		return nil
	}

	amount, err := strconv.ParseFloat(details.Amount, 64)
	if err != nil {
		return fmt.Errorf("invalid payment amount %q: %w", details.Amount, err)
	}

	entry := Transaction{
		ID:          fmt.Sprintf("T%08d", rand.Intn(100_000_000)),
		Date:        time.Now().Format(paymentDateLayout),
		Reference:   details.Reference,
		Amount:      details.Amount,
		Currency:    details.Currency,
		CreditDebit: Debit,
	}

	if err := s.store.ApplyDebit(details.DebtorName, details.DebtorAccountID, amount, entry); err != nil {
		return err
	}

	log.Info().
		Str("bank", details.DebtorName).
		Str("account", details.DebtorAccountID).
		Str("amount", details.Amount).
		Msg("payment applied to ledger")
	return nil
}
