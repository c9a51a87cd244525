package consent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// consentTimeLayout is ISO-8601 with millisecond precision and an explicit
// offset. The authorization server parses these fields strictly, so the
// format must match exactly.
const consentTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Account consent window: transactions are requested 30 days back and the
// consent itself expires after 90 days.
const (
	transactionLookback = 30 * 24 * time.Hour
	consentLifetime     = 90 * 24 * time.Hour
)

var accountPermissions = []string{
	"ReadAccountsBasic",
	"ReadAccountsDetail",
	"ReadBalances",
	"ReadTransactionsDetail",
}

// PaymentDetails describes a single domestic payment to be consented.
type PaymentDetails struct {
	DebtorName      string // display name of the paying bank
	DebtorAccountID string // account number at the paying bank
	CreditorName    string // payee display name
	Amount          string
	Currency        string
	Reference       string
}

type amount struct {
	Amount   string `json:"Amount"`
	Currency string `json:"Currency"`
}

type consentAccount struct {
	SchemeName              string `json:"SchemeName"`
	Identification          string `json:"Identification"`
	Name                    string `json:"Name"`
	SecondaryIdentification string `json:"SecondaryIdentification"`
}

type remittance struct {
	Reference string `json:"Reference"`
}

type initiation struct {
	InstructionIdentification string         `json:"InstructionIdentification"`
	EndToEndIdentification    string         `json:"EndToEndIdentification"`
	LocalInstrument           string         `json:"LocalInstrument"`
	InstructedAmount          amount         `json:"InstructedAmount"`
	CreditorAccount           consentAccount `json:"CreditorAccount"`
	DebtorAccount             consentAccount `json:"DebtorAccount"`
	RemittanceInformation     *remittance    `json:"RemittanceInformation,omitempty"`
	SupplementaryData         map[string]any `json:"SupplementaryData"`
}

// AccountConsentBody builds the account-access consent request: the fixed
// permission set plus the transaction window anchored at now in the given
// zone.
func AccountConsentBody(now time.Time, zone *time.Location) (string, error) {
	anchored := now.In(zone)

	body := map[string]any{
		"Data": map[string]any{
			"Permissions":             accountPermissions,
			"ExpirationDateTime":      anchored.Add(consentLifetime).Format(consentTimeLayout),
			"TransactionFromDateTime": anchored.Add(-transactionLookback).Format(consentTimeLayout),
			"TransactionToDateTime":   anchored.Format(consentTimeLayout),
		},
		"Risk": map[string]any{},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding account consent body: %w", err)
	}
	return string(encoded), nil
}

// PaymentConsentBody builds the payment-initiation consent request for a
// single domestic payment.
func PaymentConsentBody(p PaymentDetails) (string, error) {
	init := initiation{
		InstructionIdentification: "INST-" + shortUUID(),
		EndToEndIdentification:    "E2E-" + shortUUID(),
		LocalInstrument:           "OB.Paym",
		InstructedAmount: amount{
			Amount:   formatAmount(p.Amount),
			Currency: p.Currency,
		},
		CreditorAccount: consentAccount{
			SchemeName:              "OB.SortCodeAccountNumber",
			Identification:          numericID(14),
			Name:                    p.CreditorName,
			SecondaryIdentification: "0002",
		},
		DebtorAccount: consentAccount{
			SchemeName:              "OB.SortCodeAccountNumber",
			Identification:          p.DebtorAccountID,
			Name:                    p.DebtorName,
			SecondaryIdentification: p.DebtorAccountID + "001",
		},
		SupplementaryData: map[string]any{"additionalProp1": map[string]any{}},
	}
	if strings.TrimSpace(p.Reference) != "" {
		init.RemittanceInformation = &remittance{Reference: p.Reference}
	}

	body := map[string]any{
		"Data": map[string]any{"Initiation": init},
		"Risk": map[string]any{},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding payment consent body: %w", err)
	}
	return string(encoded), nil
}

// ParseTimeOffset converts an offset like "+05:30" into a fixed time zone for
// consent date anchoring.
func ParseTimeOffset(offset string) (*time.Location, error) {
	if offset == "" || offset == "Z" {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", offset)
	if err != nil {
		return nil, fmt.Errorf("invalid consent time offset %q: %w", offset, err)
	}
	_, seconds := t.Zone()
	return time.FixedZone(offset, seconds), nil
}

func shortUUID() string {
	return strings.ToUpper(uuid.New().String()[:8])
}

// formatAmount normalizes to two decimal places; values that do not parse are
// passed through for the server to reject.
func formatAmount(value string) string {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	return strconv.FormatFloat(parsed, 'f', 2, 64)
}

// numericID derives a digits-only identifier of the given length from a
// random UUID.
func numericID(length int) string {
	var sb strings.Builder
	for _, c := range strings.ReplaceAll(uuid.New().String(), "-", "") {
		if sb.Len() >= length {
			break
		}
		sb.WriteByte(byte('0' + hexDigit(c)%10))
	}
	return sb.String()
}

func hexDigit(c rune) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	return int(c-'a') + 10
}
