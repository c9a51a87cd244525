package bank

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openbanking-demos/tpp-backend/transport"
)

// Config identifies the AISP endpoints and the presentation values of the
// connected mock bank.
type Config struct {
	AccountsBaseURL string
	FAPIFinancialID string

	BankName       string
	BankLogo       string
	PrimaryColor   string
	SecondaryColor string
}

// Service pulls account data over the protected resource API and maintains
// the local registry.
type Service struct {
	store  *Store
	client *transport.Client
	cfg    Config
}

// NewService creates the enrichment service.
func NewService(store *Store, client *transport.Client, cfg Config) *Service {
	return &Service{store: store, client: client, cfg: cfg}
}

// Banks returns the current registry snapshot.
func (s *Service) Banks() []Bank {
	return s.store.Banks()
}

// EnrichAccounts fetches the consented accounts, their balances and
// transactions, and registers them under the configured bank. Idempotent per
// bank name: a second authorization for the same bank is skipped.
func (s *Service) EnrichAccounts(ctx context.Context, accessToken string) error {
	if s.store.Exists(s.cfg.BankName) {
		log.Info().Str("bank", s.cfg.BankName).Msg("bank already registered, skipping enrichment")
		return nil
	}

	accountIDs, err := s.fetchAccountIDs(ctx, accessToken)
	if err != nil {
		return err
	}

	accounts := make([]Account, 0, len(accountIDs))
	for _, id := range accountIDs {
		account, err := s.fetchAccount(ctx, accessToken, id)
		if err != nil {
			return err
		}
		accounts = append(accounts, account)
	}

	s.store.Add(Bank{
		Name:           s.cfg.BankName,
		Logo:           s.cfg.BankLogo,
		PrimaryColor:   s.cfg.PrimaryColor,
		SecondaryColor: s.cfg.SecondaryColor,
		Accounts:       accounts,
	})
	log.Info().Str("bank", s.cfg.BankName).Int("accounts", len(accounts)).Msg("bank registered")
	return nil
}

func (s *Service) fetchAccountIDs(ctx context.Context, accessToken string) ([]string, error) {
	var parsed struct {
		Data struct {
			Account []struct {
				AccountID string `json:"AccountId"`
			} `json:"Account"`
		} `json:"Data"`
	}
	if err := s.getJSON(ctx, accessToken, s.cfg.AccountsBaseURL+"/accounts", &parsed); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(parsed.Data.Account))
	for _, a := range parsed.Data.Account {
		ids = append(ids, a.AccountID)
	}
	return ids, nil
}

func (s *Service) fetchAccount(ctx context.Context, accessToken, accountID string) (Account, error) {
	name, err := s.fetchAccountName(ctx, accessToken, accountID)
	if err != nil {
		return Account{}, err
	}
	balance, err := s.fetchBalance(ctx, accessToken, accountID)
	if err != nil {
		return Account{}, err
	}
	transactions, err := s.fetchTransactions(ctx, accessToken, accountID)
	if err != nil {
		return Account{}, err
	}
	return Account{ID: accountID, Name: name, Balance: balance, Transactions: transactions}, nil
}

func (s *Service) fetchAccountName(ctx context.Context, accessToken, accountID string) (string, error) {
	var parsed struct {
		Data struct {
			Account []struct {
				Nickname string `json:"Nickname"`
				Account  []struct {
					Name string `json:"Name"`
				} `json:"Account"`
			} `json:"Account"`
		} `json:"Data"`
	}
	if err := s.getJSON(ctx, accessToken, s.cfg.AccountsBaseURL+"/accounts/"+accountID, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Data.Account) == 0 {
		return "", fmt.Errorf("account %s: empty Data.Account", accountID)
	}

	detail := parsed.Data.Account[0]
	if len(detail.Account) > 0 && detail.Account[0].Name != "" {
		return detail.Account[0].Name, nil
	}
	if detail.Nickname != "" {
		return detail.Nickname, nil
	}
	return "Standard Account", nil
}

func (s *Service) fetchBalance(ctx context.Context, accessToken, accountID string) (float64, error) {
	var parsed struct {
		Data struct {
			Balance []struct {
				Amount struct {
					Amount float64 `json:"Amount,string"`
				} `json:"Amount"`
			} `json:"Balance"`
		} `json:"Data"`
	}
	if err := s.getJSON(ctx, accessToken, s.cfg.AccountsBaseURL+"/accounts/"+accountID+"/balances", &parsed); err != nil {
		return 0, err
	}
	if len(parsed.Data.Balance) == 0 {
		return 0, fmt.Errorf("account %s: empty Data.Balance", accountID)
	}
	return parsed.Data.Balance[0].Amount.Amount, nil
}

func (s *Service) fetchTransactions(ctx context.Context, accessToken, accountID string) ([]Transaction, error) {
	var parsed struct {
		Data struct {
			Transaction []struct {
				TransactionID          string `json:"TransactionId"`
				BookingDateTime        string `json:"BookingDateTime"`
				TransactionInformation string `json:"TransactionInformation"`
				CreditDebitIndicator   string `json:"CreditDebitIndicator"`
				Amount                 struct {
					Amount   string `json:"Amount"`
					Currency string `json:"Currency"`
				} `json:"Amount"`
			} `json:"Transaction"`
		} `json:"Data"`
	}
	if err := s.getJSON(ctx, accessToken, s.cfg.AccountsBaseURL+"/accounts/"+accountID+"/transactions", &parsed); err != nil {
		return nil, err
	}

	transactions := make([]Transaction, 0, len(parsed.Data.Transaction))
	for _, t := range parsed.Data.Transaction {
		transactions = append(transactions, Transaction{
			ID:          t.TransactionID,
			Date:        t.BookingDateTime,
			Reference:   t.TransactionInformation,
			Amount:      t.Amount.Amount,
			Currency:    t.Amount.Currency,
			CreditDebit: normalizeIndicator(t.CreditDebitIndicator),
		})
	}
	return transactions, nil
}

func (s *Service) getJSON(ctx context.Context, accessToken, url string, out any) error {
	headers := map[string]string{
		transport.HeaderFAPIID:        s.cfg.FAPIFinancialID,
		transport.HeaderAuthorization: transport.BearerPrefix + accessToken,
		transport.HeaderAccept:        transport.MediaJSON,
		transport.HeaderContentType:   transport.MediaJSONUTF8,
	}

	resp, err := s.client.Get(ctx, url, headers)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	if !resp.Success() {
		return fmt.Errorf("fetching %s: HTTP %d: %s", url, resp.StatusCode, resp.Body)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", url, err)
	}
	return nil
}

func normalizeIndicator(raw string) CreditDebit {
	if raw == string(Debit) || raw == "d" || raw == "D" {
		return Debit
	}
	return Credit
}
