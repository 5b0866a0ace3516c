package billing

import (
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pankaj-dahiya-devops/billing-analyzer/internal/models"
)

// TagValue extracts the tag value from a Cost Explorer tag group key of the
// form "<TagKey>$<value>". Keys without a "$" separator or with an empty
// value are reported as models.UntaggedValue.
func TagValue(key string) string {
	i := strings.LastIndex(key, "$")
	if i < 0 {
		return models.UntaggedValue
	}
	v := strings.TrimSpace(key[i+1:])
	if v == "" {
		return models.UntaggedValue
	}
	return v
}

// RoundCost rounds a USD amount to 4 decimal places.
func RoundCost(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// FormatUSD renders a cost rounded to 4 decimals with thousands separators,
// e.g. $1,234.5678. Credits keep the sign in front: -$12.0000.
func FormatUSD(v float64) string {
	v = RoundCost(v)
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.####", -v)
	}
	return "$" + humanize.FormatFloat("#,###.####", v)
}
