package config

import (
	"fmt"
	"sort"
	"strings"
)

// Market describes one study market: its instrument universe, the
// benchmark index trades are executed against, and the cache namespace
// its artifacts are stored under.
type Market struct {
	ID        string   `yaml:"id" validate:"required"`
	Name      string   `yaml:"name" validate:"required"`
	Benchmark string   `yaml:"benchmark" validate:"required"`
	Tickers   []string `yaml:"tickers" validate:"min=2"`
}

// VolatilitySymbol is the reference volatility index used as the
// baseline signal source in cross-market comparisons.
const VolatilitySymbol = "^VIX"

// builtinMarkets holds the default market definitions
var builtinMarkets = map[string]Market{
	"us": {
		ID:        "us",
		Name:      "US (S&P 500)",
		Benchmark: "^GSPC",
		Tickers: []string{
			"AAPL", "MSFT", "GOOGL", "AMZN", "META",
			"NVDA", "BRK-B", "JPM", "JNJ", "V",
			"PG", "UNH", "HD", "MA", "DIS",
			"PYPL", "VZ", "ADBE", "NFLX", "CRM",
			"INTC", "CMCSA", "PFE", "KO", "PEP",
			"T", "MRK", "WMT", "ABT", "CVX",
			"XOM", "BA", "CSCO", "WFC", "C",
			"ORCL", "ACN", "COST", "NKE", "MCD",
			"DHR", "NEE", "LLY", "TXN", "QCOM",
			"LOW", "UPS", "BMY", "AMGN", "IBM",
		},
	},
	"japan": {
		ID:        "japan",
		Name:      "Japan (Nikkei 225)",
		Benchmark: "^N225",
		Tickers: []string{
			"7203.T", "6758.T", "9984.T", "6861.T", "8306.T",
			"9432.T", "6501.T", "7267.T", "4502.T", "6902.T",
			"7751.T", "8035.T", "6367.T", "4063.T", "6954.T",
			"7974.T", "8316.T", "9433.T", "6981.T", "4519.T",
			"8411.T", "6503.T", "7201.T", "2914.T", "3382.T",
			"4568.T", "6702.T", "8031.T", "9022.T", "6326.T",
		},
	},
	"germany": {
		ID:        "germany",
		Name:      "Germany (DAX 40)",
		Benchmark: "^GDAXI",
		Tickers: []string{
			"SAP.DE", "SIE.DE", "ALV.DE", "DTE.DE", "BAS.DE",
			"BAYN.DE", "MBG.DE", "BMW.DE", "MUV2.DE", "ADS.DE",
			"AIR.DE", "DPW.DE", "DB1.DE", "VOW3.DE", "IFX.DE",
			"HEN3.DE", "RWE.DE", "EOAN.DE", "FRE.DE", "CON.DE",
			"BEI.DE", "HEI.DE", "MRK.DE", "VNA.DE", "FME.DE",
			"MTX.DE", "SY1.DE", "ENR.DE", "ZAL.DE", "PUM.DE",
		},
	},
}

// GetMarket returns the built-in market definition for the given id
func GetMarket(id string) (Market, error) {
	m, ok := builtinMarkets[strings.ToLower(id)]
	if !ok {
		return Market{}, fmt.Errorf("unknown market %q (known: %s)",
			id, strings.Join(MarketIDs(), ", "))
	}
	return m, nil
}

// MarketIDs returns the ids of all built-in markets in sorted order
func MarketIDs() []string {
	ids := make([]string, 0, len(builtinMarkets))
	for id := range builtinMarkets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllMarkets returns all built-in market definitions, sorted by id
func AllMarkets() []Market {
	markets := make([]Market, 0, len(builtinMarkets))
	for _, id := range MarketIDs() {
		markets = append(markets, builtinMarkets[id])
	}
	return markets
}

// ParseMarkets resolves a comma-separated list of market ids, or all
// built-in markets when the list is empty
func ParseMarkets(list string) ([]Market, error) {
	if strings.TrimSpace(list) == "" {
		return AllMarkets(), nil
	}

	var markets []Market
	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		m, err := GetMarket(id)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("no markets specified")
	}
	return markets, nil
}
