package market

// Indices tracked by the Casablanca exchange snapshot.
var Indices = []string{"MASI", "MSI20"}

// Company is one daily snapshot row of the Company table.
type Company struct {
	Symbol string   `json:"symbol"`
	Name   string   `json:"name"`
	Price  float64  `json:"price"`
	Open   *float64 `json:"open,omitempty"`
	High   *float64 `json:"high,omitempty"`
	Low    *float64 `json:"low,omitempty"`
	Change string   `json:"change"`
	Volume string   `json:"volume"`
	Date   string   `json:"date"`
}

// Variation is an intraday price sample from DailyVariation.
type Variation struct {
	Symbol    string  `json:"symbol"`
	Timestamp string  `json:"timestamp"`
	Price     float64 `json:"price"`
	Change    string  `json:"change"`
}

// Candle is one OHLC row of stock_history.
type Candle struct {
	Symbol string  `json:"symbol"`
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Listing is an entry of the alphabetical company list.
type Listing struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}
