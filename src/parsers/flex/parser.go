package flex

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// --- XML Data Structures ---
//
// The element and attribute names below are the broker's versioned export
// contract. Everything is decoded as strings; numeric conversion happens in
// the ingestion layer so that one malformed attribute skips one record
// instead of failing the whole file.

// FlexQueryResponse is the root element of every export kind. Each kind's
// file populates only its own section.
type FlexQueryResponse struct {
	XMLName        xml.Name        `xml:"FlexQueryResponse"`
	QueryName      string          `xml:"queryName,attr"`
	FlexStatements []FlexStatement `xml:"FlexStatements>FlexStatement"`
}

// FlexStatement contains all the data for a given account and period. One
// file may carry several statements with overlapping date ranges.
type FlexStatement struct {
	XMLName          xml.Name          `xml:"FlexStatement"`
	AccountID        string            `xml:"accountId,attr"`
	FromDate         string            `xml:"fromDate,attr"`
	ToDate           string            `xml:"toDate,attr"`
	Trades           []Trade           `xml:"Trades>Trade"`
	CashTransactions []CashTransaction `xml:"CashTransactions>CashTransaction"`
	ChangeInNAVs     []ChangeInNAV     `xml:"ChangeInNAVs>ChangeInNAV"`
	OptionEAEs       []OptionEAE       `xml:"OptionEAE>OptionEAEDetail"`
	InterestAccruals []InterestAccrual `xml:"InterestAccruals>InterestAccrualsCurrency"`
}

// Trade is a stock or option execution.
type Trade struct {
	TransactionID   string `xml:"transactionID,attr"`
	Symbol          string `xml:"symbol,attr"`
	Description     string `xml:"description,attr"`
	AssetCategory   string `xml:"assetCategory,attr"` // STK, OPT
	TradeDate       string `xml:"tradeDate,attr"`
	DateTime        string `xml:"dateTime,attr"`
	Quantity        string `xml:"quantity,attr"`
	TradePrice      string `xml:"tradePrice,attr"`
	Proceeds        string `xml:"proceeds,attr"`
	IBCommission    string `xml:"ibCommission,attr"`
	FifoPnlRealized string `xml:"fifoPnlRealized,attr"`
	Currency        string `xml:"currency,attr"`
	BuySell         string `xml:"buySell,attr"`
	PutCall         string `xml:"putCall,attr"`
	Multiplier      string `xml:"multiplier,attr"`
}

// CashTransaction is a deposit, withdrawal or broker interest line.
type CashTransaction struct {
	TransactionID string `xml:"transactionID,attr"`
	Type          string `xml:"type,attr"` // "Deposits/Withdrawals", "Broker Interest Paid", ...
	Description   string `xml:"description,attr"`
	DateTime      string `xml:"dateTime,attr"`
	Amount        string `xml:"amount,attr"`
	Currency      string `xml:"currency,attr"`
	LevelOfDetail string `xml:"levelOfDetail,attr"`
}

// ChangeInNAV is the broker's own per-date NAV reconciliation row.
type ChangeInNAV struct {
	ReportDate               string `xml:"reportDate,attr"`
	StartingValue            string `xml:"startingValue,attr"`
	EndingValue              string `xml:"endingValue,attr"`
	MarkToMarket             string `xml:"mtm,attr"`
	Realized                 string `xml:"realized,attr"`
	Interest                 string `xml:"interest,attr"`
	ChangeInInterestAccruals string `xml:"changeInInterestAccruals,attr"`
	Commissions              string `xml:"commissions,attr"`
	DepositsWithdrawals      string `xml:"depositsWithdrawals,attr"`
	Currency                 string `xml:"currency,attr"`
}

// OptionEAE is an option exercise, assignment or expiration record. TradeID
// is the explicit pairing key to the settlement trade the broker books with
// it; pairing is never positional.
type OptionEAE struct {
	TransactionID   string `xml:"transactionID,attr"`
	TradeID         string `xml:"tradeID,attr"`
	Symbol          string `xml:"symbol,attr"`
	Date            string `xml:"date,attr"`
	TransactionType string `xml:"transactionType,attr"` // Assignment, Exercise, Expiration
	Quantity        string `xml:"quantity,attr"`
	TradePrice      string `xml:"tradePrice,attr"`
	Proceeds        string `xml:"proceeds,attr"`
	Currency        string `xml:"currency,attr"`
}

// InterestAccrual is one currency's accrual movement over a statement period.
type InterestAccrual struct {
	FromDate        string `xml:"fromDate,attr"`
	ToDate          string `xml:"toDate,attr"`
	InterestAccrued string `xml:"interestAccrued,attr"`
	Currency        string `xml:"currency,attr"`
}

// Parse decodes one export file of any kind.
func Parse(file io.Reader) (*FlexQueryResponse, error) {
	var response FlexQueryResponse
	decoder := xml.NewDecoder(file)
	if err := decoder.Decode(&response); err != nil {
		return nil, fmt.Errorf("flex parser: failed to decode XML: %w", err)
	}
	return &response, nil
}

// ParseDateTime converts the broker's "YYYYMMDD;HHMMSS" format (date-only
// accepted) to a time.Time in the given location.
func ParseDateTime(datetime string, loc *time.Location) (time.Time, error) {
	layout := "20060102;150405"
	if !strings.Contains(datetime, ";") {
		layout = "20060102"
	}

	t, err := time.ParseInLocation(layout, datetime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse flex datetime '%s': %w", datetime, err)
	}
	return t, nil
}

// ParseDate converts the broker's "YYYYMMDD" date format to YYYY-MM-DD.
func ParseDate(date string) (string, error) {
	t, err := time.Parse("20060102", date)
	if err != nil {
		return "", fmt.Errorf("could not parse flex date '%s': %w", date, err)
	}
	return t.Format("2006-01-02"), nil
}
