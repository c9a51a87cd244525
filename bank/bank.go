// Package bank holds the demo's presentation-side model of banks, accounts
// and transactions, populated from the Open Banking resource APIs after a
// successful consent, and mutated locally when a payment completes.
package bank

import (
	"errors"
	"fmt"
	"sync"
)

// CreditDebit marks the direction of a ledger entry.
type CreditDebit string

const (
	// Credit is money arriving in the account.
	Credit CreditDebit = "Credit"
	// Debit is money leaving the account.
	Debit CreditDebit = "Debit"
)

// ErrAccountNotFound is returned when a bank/account pair is unknown.
var ErrAccountNotFound = errors.New("account not found")

// ErrInsufficientBalance is returned when a payment exceeds the account
// balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Transaction is one ledger entry of an account.
type Transaction struct {
	ID          string      `json:"id"`
	Date        string      `json:"date"`
	Reference   string      `json:"reference"`
	Amount      string      `json:"amount"`
	Currency    string      `json:"currency"`
	CreditDebit CreditDebit `json:"creditDebitStatus"`
}

// Account is a bank account with its transaction history.
type Account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Balance      float64       `json:"balance"`
	Transactions []Transaction `json:"transactions"`
}

// Bank groups accounts under a presentation identity.
type Bank struct {
	Name           string    `json:"name"`
	Logo           string    `json:"logo"`
	PrimaryColor   string    `json:"primaryColor"`
	SecondaryColor string    `json:"secondaryColor"`
	Accounts       []Account `json:"accounts"`
}

// Store is the in-memory bank registry. Thread-safe; holds no references to
// tokens or sessions.
type Store struct {
	mu    sync.RWMutex
	banks []Bank
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{}
}

// Banks returns a snapshot of all banks.
func (s *Store) Banks() []Bank {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]Bank, len(s.banks))
	copy(snapshot, s.banks)
	return snapshot
}

// Exists reports whether a bank with the given name is registered.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.banks {
		if b.Name == name {
			return true
		}
	}
	return false
}

// Add registers a bank.
func (s *Store) Add(bank Bank) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.banks = append(s.banks, bank)
}

// ApplyDebit reduces an account's balance by amount and appends the ledger
// entry, atomically. Fails without mutating anything when the account is
// missing or the balance is too low.
func (s *Store) ApplyDebit(bankName, accountID string, amount float64, entry Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for bi := range s.banks {
		if s.banks[bi].Name != bankName {
			continue
		}
		for ai := range s.banks[bi].Accounts {
			account := &s.banks[bi].Accounts[ai]
			if account.ID != accountID {
				continue
			}
			if account.Balance < amount {
				return fmt.Errorf("%w: required %.2f, available %.2f", ErrInsufficientBalance, amount, account.Balance)
			}
			account.Balance -= amount
			account.Transactions = append(account.Transactions, entry)
			return nil
		}
	}
	return fmt.Errorf("%w: bank %q account %q", ErrAccountNotFound, bankName, accountID)
}
