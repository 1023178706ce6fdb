package provider

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/dhumphrey11/moda-trading/internal/core"
)

// validSymbol matches tickers like AAPL, MSFT, BRK.B
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9]{1,10}(\.[A-Za-z]{1,4})?$`)

// ValidateSymbol checks that a ticker symbol has a plausible format
// before it is interpolated into a request path.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// StatusError maps an HTTP response status to the provider error
// taxonomy: 429 is a vendor-reported rate limit, anything else non-2xx
// is a transient provider failure.
func StatusError(status int) error {
	if status == http.StatusTooManyRequests {
		return core.WrapError(core.ErrProviderRateLimited, fmt.Errorf("status %d", status))
	}
	return core.WrapError(core.ErrProviderFailed, fmt.Errorf("unexpected status: %d", status))
}
