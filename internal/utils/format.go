package utils

import (
	"math/big"
	"strings"
)

// FormatStake renders a stake that is already in whole tokens with thousand
// separators.
// Examples:
//   - 1000 -> "1,000"
//   - 100000 -> "100,000"
//   - nil -> "0"
func FormatStake(stake *big.Int) string {
	if stake == nil || stake.Sign() == 0 {
		return "0"
	}
	return groupThousands(stake.String())
}

// FormatStakeWei converts a base unit (10^18) amount to whole tokens first.
func FormatStakeWei(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return FormatStake(new(big.Int).Quo(wei, divisor))
}

func groupThousands(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	var formatted strings.Builder
	formatted.WriteString(sign)
	length := len(digits)
	for i, r := range digits {
		if i > 0 && (length-i)%3 == 0 {
			formatted.WriteString(",")
		}
		formatted.WriteRune(r)
	}
	return formatted.String()
}
