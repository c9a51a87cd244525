package consent_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openbanking-demos/tpp-backend/consent"
)

func TestAccountConsentBody(t *testing.T) {
	zone := time.FixedZone("+05:30", 5*3600+30*60)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	body, err := consent.AccountConsentBody(now, zone)
	require.NoError(t, err)

	var parsed struct {
		Data struct {
			Permissions             []string `json:"Permissions"`
			ExpirationDateTime      string   `json:"ExpirationDateTime"`
			TransactionFromDateTime string   `json:"TransactionFromDateTime"`
			TransactionToDateTime   string   `json:"TransactionToDateTime"`
		} `json:"Data"`
		Risk map[string]any `json:"Risk"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))

	t.Run("permission set", func(t *testing.T) {
		require.Equal(t, []string{
			"ReadAccountsBasic",
			"ReadAccountsDetail",
			"ReadBalances",
			"ReadTransactionsDetail",
		}, parsed.Data.Permissions)
	})

	t.Run("dates anchored in the configured zone", func(t *testing.T) {
		require.Equal(t, "2026-03-01T17:30:00.000+05:30", parsed.Data.TransactionToDateTime)
		require.Equal(t, "2026-01-30T17:30:00.000+05:30", parsed.Data.TransactionFromDateTime)
		require.Equal(t, "2026-05-30T17:30:00.000+05:30", parsed.Data.ExpirationDateTime)
	})

	t.Run("risk object present", func(t *testing.T) {
		require.NotNil(t, parsed.Risk)
		require.Empty(t, parsed.Risk)
	})
}

func TestPaymentConsentBody(t *testing.T) {
	details := consent.PaymentDetails{
		DebtorName:      "Best Bank",
		DebtorAccountID: "30080012343456",
		CreditorName:    "ACME Supplies",
		Amount:          "10.5",
		Currency:        "GBP",
		Reference:       "Invoice 42",
	}

	body, err := consent.PaymentConsentBody(details)
	require.NoError(t, err)

	var parsed struct {
		Data struct {
			Initiation struct {
				InstructionIdentification string `json:"InstructionIdentification"`
				EndToEndIdentification    string `json:"EndToEndIdentification"`
				LocalInstrument           string `json:"LocalInstrument"`
				InstructedAmount          struct {
					Amount   string `json:"Amount"`
					Currency string `json:"Currency"`
				} `json:"InstructedAmount"`
				CreditorAccount struct {
					SchemeName              string `json:"SchemeName"`
					Identification          string `json:"Identification"`
					Name                    string `json:"Name"`
					SecondaryIdentification string `json:"SecondaryIdentification"`
				} `json:"CreditorAccount"`
				DebtorAccount struct {
					SchemeName              string `json:"SchemeName"`
					Identification          string `json:"Identification"`
					Name                    string `json:"Name"`
					SecondaryIdentification string `json:"SecondaryIdentification"`
				} `json:"DebtorAccount"`
				RemittanceInformation *struct {
					Reference string `json:"Reference"`
				} `json:"RemittanceInformation"`
			} `json:"Initiation"`
		} `json:"Data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	init := parsed.Data.Initiation

	t.Run("identifiers", func(t *testing.T) {
		require.Regexp(t, `^INST-[0-9A-F]{8}$`, init.InstructionIdentification)
		require.Regexp(t, `^E2E-[0-9A-F]{8}$`, init.EndToEndIdentification)
		require.Equal(t, "OB.Paym", init.LocalInstrument)
	})

	t.Run("amount normalized to two decimals", func(t *testing.T) {
		require.Equal(t, "10.50", init.InstructedAmount.Amount)
		require.Equal(t, "GBP", init.InstructedAmount.Currency)
	})

	t.Run("creditor account", func(t *testing.T) {
		require.Equal(t, "OB.SortCodeAccountNumber", init.CreditorAccount.SchemeName)
		require.Regexp(t, `^[0-9]{14}$`, init.CreditorAccount.Identification)
		require.Equal(t, "ACME Supplies", init.CreditorAccount.Name)
		require.Equal(t, "0002", init.CreditorAccount.SecondaryIdentification)
	})

	t.Run("debtor account", func(t *testing.T) {
		require.Equal(t, "OB.SortCodeAccountNumber", init.DebtorAccount.SchemeName)
		require.Equal(t, "30080012343456", init.DebtorAccount.Identification)
		require.Equal(t, "Best Bank", init.DebtorAccount.Name)
		require.Equal(t, "30080012343456001", init.DebtorAccount.SecondaryIdentification)
	})

	t.Run("remittance reference", func(t *testing.T) {
		require.NotNil(t, init.RemittanceInformation)
		require.Equal(t, "Invoice 42", init.RemittanceInformation.Reference)
	})

	t.Run("remittance omitted without a reference", func(t *testing.T) {
		noRef := details
		noRef.Reference = "  "
		body, err := consent.PaymentConsentBody(noRef)
		require.NoError(t, err)
		require.NotContains(t, body, "RemittanceInformation")
	})
}

func TestParseTimeOffset(t *testing.T) {
	t.Run("positive offset", func(t *testing.T) {
		zone, err := consent.ParseTimeOffset("+05:30")
		require.NoError(t, err)
		_, seconds := time.Now().In(zone).Zone()
		require.Equal(t, 5*3600+30*60, seconds)
	})

	t.Run("negative offset", func(t *testing.T) {
		zone, err := consent.ParseTimeOffset("-03:00")
		require.NoError(t, err)
		_, seconds := time.Now().In(zone).Zone()
		require.Equal(t, -3*3600, seconds)
	})

	t.Run("empty means UTC", func(t *testing.T) {
		zone, err := consent.ParseTimeOffset("")
		require.NoError(t, err)
		require.Equal(t, time.UTC, zone)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := consent.ParseTimeOffset("tomorrow")
		require.Error(t, err)
	})
}
