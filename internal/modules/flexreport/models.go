package flexreport

import "encoding/xml"

// Wire structs for the vendor's multi-account export. Every record field is
// an XML attribute; all values arrive as strings and are parsed into
// decimals/dates by the normalizer, never trusted blindly.

type flexQueryResponse struct {
	XMLName    xml.Name        `xml:"FlexQueryResponse"`
	QueryName  string          `xml:"queryName,attr"`
	Statements []flexStatement `xml:"FlexStatements>FlexStatement"`
}

type flexStatement struct {
	AccountID   string              `xml:"accountId,attr"`
	FromDate    string              `xml:"fromDate,attr"`
	ToDate      string              `xml:"toDate,attr"`
	AccountInfo *accountInformation `xml:"AccountInformation"`
	CashReports []cashReportRecord  `xml:"CashReport>CashReportCurrency"`
	Positions   []openPosition      `xml:"OpenPositions>OpenPosition"`
	Trades      []tradeRecord       `xml:"Trades>Trade"`
}

type accountInformation struct {
	AccountID string `xml:"accountId,attr"`
	Currency  string `xml:"currency,attr"` // account base currency
}

// cashReportRecord is one CashReportCurrency row. The row whose currency is
// "BASE_SUMMARY" is the vendor's base-currency aggregate.
type cashReportRecord struct {
	Currency           string `xml:"currency,attr"`
	StartingCash       string `xml:"startingCash,attr"`
	EndingCash         string `xml:"endingCash,attr"`
	Deposits           string `xml:"deposits,attr"`
	Withdrawals        string `xml:"withdrawals,attr"`
	Dividends          string `xml:"dividends,attr"`
	BrokerInterest     string `xml:"brokerInterest,attr"`
	Commissions        string `xml:"commissions,attr"`
	OtherFees          string `xml:"otherFees,attr"`
	NetTradesSales     string `xml:"netTradesSales,attr"`
	NetTradesPurchases string `xml:"netTradesPurchases,attr"`
	FXRateToBase       string `xml:"fxRateToBase,attr"`
}

type openPosition struct {
	Symbol            string `xml:"symbol,attr"`
	AssetCategory     string `xml:"assetCategory,attr"`
	Position          string `xml:"position,attr"` // signed quantity
	CostBasisPrice    string `xml:"costBasisPrice,attr"`
	CostBasisMoney    string `xml:"costBasisMoney,attr"`
	MarkPrice         string `xml:"markPrice,attr"`
	PositionValue     string `xml:"positionValue,attr"`
	FifoPnlUnrealized string `xml:"fifoPnlUnrealized,attr"`
	Currency          string `xml:"currency,attr"`
	FXRateToBase      string `xml:"fxRateToBase,attr"`
	// Bond-only attributes
	CouponRate string `xml:"couponRate,attr"`
	Maturity   string `xml:"maturity,attr"` // yyyymmdd
}

type tradeRecord struct {
	TradeID          string `xml:"tradeID,attr"`
	TradeDate        string `xml:"tradeDate,attr"` // yyyymmdd
	SettleDateTarget string `xml:"settleDateTarget,attr"`
	Symbol           string `xml:"symbol,attr"`
	AssetCategory    string `xml:"assetCategory,attr"`
	BuySell          string `xml:"buySell,attr"`
	Quantity         string `xml:"quantity,attr"`
	TradePrice       string `xml:"tradePrice,attr"`
	TradeMoney       string `xml:"tradeMoney,attr"` // quantity * price in local currency
	IBCommission     string `xml:"ibCommission,attr"`
	FifoPnlRealized  string `xml:"fifoPnlRealized,attr"`
	Currency         string `xml:"currency,attr"`
	FXRateToBase     string `xml:"fxRateToBase,attr"`
	OrderTime        string `xml:"orderTime,attr"` // yyyymmdd;HHmmss
}
