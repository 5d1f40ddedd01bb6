package feed

// intradayResponse is the quote feed's intraday time-series payload.
// The series maps "YYYY-MM-DD HH:MM:SS" bar timestamps to OHLCV fields
// keyed by positional names ("1. open", "2. high", ...). Numbers arrive
// as strings.
type intradayResponse struct {
	Series map[string]map[string]string `json:"Time Series (1min)"`
	Note   string                       `json:"Note"`
	Error  string                       `json:"Error Message"`
}

// convertResponse is the FX feed's compact conversion payload:
// {"EUR_USD": {"val": 1.1623}}.
type convertResponse map[string]struct {
	Val float64 `json:"val"`
}
