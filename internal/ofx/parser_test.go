package ofx

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const companyINN = "7700000000"

const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>RUB
<BANKACCTFROM>
<BANKID>044525225
<ACCTID>40702810900000000001
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301000000[0:GMT]
<DTEND>20240331000000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240301120000[0:GMT]
<TRNAMT>-50000.00
<FITID>2024030101
<CHECKNUM>117
<NAME>OOO Landlord INN 7711111111
<MEMO>Office rent for March
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240305120000[0:GMT]
<TRNAMT>125000.50
<FITID>2024030501
<NAME>Client LLC
<MEMO>Payment for services INN: 7722222222
</STMTTRN>
<STMTTRN>
<TRNTYPE>FEE
<DTPOSTED>20240331120000[0:GMT]
<TRNAMT>-990.00
<FITID>2024033101
<NAME>Bank fee
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240331120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>HOSTING PROVIDER
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-45.99
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func newTestParser() *Parser {
	p := NewParser(companyINN, "OOO Romashka")
	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return p
}

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{name: "valid bank statement", ofxData: sampleBankOFX, expectedCount: 3},
		{name: "valid credit card statement", ofxData: sampleCreditCardOFX, expectedCount: 1},
		{name: "invalid OFX data", ofxData: "not valid OFX", expectedError: true},
		{name: "empty OFX", ofxData: "", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transactions, err := newTestParser().ParseFile(context.Background(), strings.NewReader(tt.ofxData))
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, transactions, tt.expectedCount)
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	transactions, err := newTestParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, transactions, 3)

	rent := transactions[0]
	assert.Equal(t, "id-1", rent.ID)
	assert.Empty(t, rent.SessionID)
	assert.Equal(t, "117", rent.Number)
	assert.Equal(t, "Office rent for March", rent.Description)
	assert.True(t, rent.Amount.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, "RUB", rent.Currency)
	assert.True(t, rent.Date.Equal(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, companyINN, rent.PayerINN, "outgoing money is paid by the company")
	assert.Equal(t, "OOO Romashka", rent.Payer)
	assert.Equal(t, "40702810900000000001", rent.PayerAccount)
	assert.Equal(t, "OOO Landlord INN 7711111111", rent.Receiver)
	assert.Equal(t, "7711111111", rent.ReceiverINN)
	assert.Equal(t, rent.GenerateHash(), rent.Hash)
	assert.False(t, rent.Direction.Resolved(), "direction is detected later")

	income := transactions[1]
	assert.True(t, income.Amount.Equal(decimal.RequireFromString("125000.5")))
	assert.Equal(t, "Client LLC", income.Payer)
	assert.Equal(t, "7722222222", income.PayerINN, "INN found in the memo")
	assert.Equal(t, companyINN, income.ReceiverINN)
	assert.Equal(t, "2024030501", income.Number, "FITID when there is no document number")

	fee := transactions[2]
	assert.Equal(t, "Bank fee", fee.Description)
	assert.Empty(t, fee.ReceiverINN)
}

func TestParseCreditCardTransactions(t *testing.T) {
	transactions, err := newTestParser().ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, transactions, 1)

	tx := transactions[0]
	assert.Equal(t, "HOSTING PROVIDER", tx.Receiver)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, "4111111111111111", tx.PayerAccount)
	assert.True(t, tx.Amount.Equal(decimal.RequireFromString("45.99")))
}

func TestParseFile_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestParser().ParseFile(ctx, strings.NewReader(sampleBankOFX))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractINN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "cyrillic label", input: "ООО Ромашка ИНН 7711111111 КПП 771101001", want: "7711111111"},
		{name: "colon", input: "inn: 770708389312", want: "770708389312"},
		{name: "end of text", input: "Оплата ИНН7711111111", want: "7711111111"},
		{name: "too short", input: "ИНН 12345", want: ""},
		{name: "eleven digits", input: "ИНН 77111111119", want: ""},
		{name: "no label", input: "7711111111", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractINN(tt.input))
		})
	}
}

func TestDescriptionAndCounterparty(t *testing.T) {
	withPayee := ofxgo.Transaction{
		Name:  ofxgo.String("SBOL TRANSFER"),
		Payee: &ofxgo.Payee{Name: ofxgo.String("IP Ivanov")},
	}
	assert.Equal(t, "IP Ivanov", counterpartyName(withPayee))
	assert.Equal(t, "SBOL TRANSFER", description(withPayee))

	withMemo := ofxgo.Transaction{Name: ofxgo.String("  Vendor "), Memo: ofxgo.String(" Invoice 12 ")}
	assert.Equal(t, "Vendor", counterpartyName(withMemo))
	assert.Equal(t, "Invoice 12", description(withMemo))
}

func TestPreprocessOFX(t *testing.T) {
	in := "\n\n  <SEVERITY>Warn</SEVERITY>\n<BANKACCTFROM\n"
	out := newTestParser().preprocessOFX(in)
	assert.Equal(t, "<SEVERITY>WARN</SEVERITY>\n<BANKACCTFROM>\n", out)
}

func TestAccounts(t *testing.T) {
	parser := newTestParser()

	accounts, err := parser.Accounts(strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"40702810900000000001"}, accounts)

	accounts, err = parser.Accounts(strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"4111111111111111"}, accounts)
}
