package models

// PriceTick is a trade/mark-price print for the reference instrument consumed
// by the regime detector.
type PriceTick struct {
	Exchange    Exchange `json:"exchange"`
	Symbol      string   `json:"symbol"`
	Price       float64  `json:"price"`
	TimestampMs int64    `json:"timestamp_ms"`
}

// OpenInterestUpdate carries a polled open-interest level for one symbol.
type OpenInterestUpdate struct {
	Exchange     Exchange `json:"exchange"`
	Symbol       string   `json:"symbol"`
	OpenInterest float64  `json:"open_interest"`
	TimestampMs  int64    `json:"timestamp_ms"`
}

// FundingRateUpdate carries the current funding rate for one symbol, taken
// from the mark-price stream.
type FundingRateUpdate struct {
	Exchange    Exchange `json:"exchange"`
	Symbol      string   `json:"symbol"`
	FundingRate float64  `json:"funding_rate"`
	TimestampMs int64    `json:"timestamp_ms"`
}
