package symbols

import "strings"

var commonCurrencies = map[string]string{
	"BCC":    "BCH",
	"BCHABC": "BCH",
	"BCHSV":  "BSV",
	"XBT":    "BTC",
}

// CommonCurrencyCode converts a vendor currency id to its unified code.
// Codes are upper-cased and renamed where an exchange lists an asset under
// a legacy or clashing ticker.
// Currently customised exchanges: kucoin, indodax, upbit.
func CommonCurrencyCode(exchange, id string) string {
	code := strings.ToUpper(strings.TrimSpace(id))
	switch strings.ToLower(exchange) {
	case "kucoin":
		switch code {
		case "BIFI":
			return "BIFIF"
		case "EDGE":
			return "DADI"
		case "HOT":
			return "HOTNOW"
		case "TRY":
			return "Trias"
		case "VAI":
			return "VAIOT"
		case "WAX":
			return "WAXP"
		}
	case "indodax":
		switch code {
		case "STR":
			return "XLM"
		case "DRK":
			return "DASH"
		case "NEM":
			return "XEM"
		}
	case "upbit":
		if code == "TON" {
			return "Tokamak Network"
		}
	}
	if mapped, ok := commonCurrencies[code]; ok {
		return mapped
	}
	return code
}

// Unified builds BASE/QUOTE or BASE/QUOTE:SETTLE.
func Unified(base, quote, settle string) string {
	if base == "" || quote == "" {
		return ""
	}
	sym := base + "/" + quote
	if settle != "" {
		sym += ":" + settle
	}
	return sym
}

// Split breaks a unified symbol into base, quote and settle.
func Split(symbol string) (base, quote, settle string, ok bool) {
	pair := symbol
	if i := strings.IndexByte(symbol, ':'); i >= 0 {
		pair, settle = symbol[:i], symbol[i+1:]
	}
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], settle, true
}

// FromID derives a unified symbol from a delimited vendor id such as
// "BTC-USDT" or, with quoteFirst, "KRW-BTC". It returns "" when the id
// does not contain exactly one delimiter.
func FromID(exchange, id, delimiter string, quoteFirst bool) string {
	if delimiter == "" {
		return ""
	}
	parts := strings.Split(id, delimiter)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	baseID, quoteID := parts[0], parts[1]
	if quoteFirst {
		baseID, quoteID = quoteID, baseID
	}
	return Unified(CommonCurrencyCode(exchange, baseID), CommonCurrencyCode(exchange, quoteID), "")
}
