package validators

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a validator account in canonical form: "0x" followed by 40
// lower-case hex characters. Comparisons against user input go through Equal.
type Address string

// ParseAddress validates and normalizes a 20-byte hex account identifier.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("invalid validator address %q", s)
	}
	return Address(strings.ToLower(common.HexToAddress(s).Hex())), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func addressFromCommon(a common.Address) Address {
	return Address(strings.ToLower(a.Hex()))
}

func (a Address) String() string {
	return string(a)
}

// Common converts to the go-ethereum representation.
func (a Address) Common() common.Address {
	return common.HexToAddress(string(a))
}

// Equal compares case-insensitively, ignoring surrounding whitespace.
func (a Address) Equal(other string) bool {
	return strings.EqualFold(string(a), strings.TrimSpace(other))
}

func (a Address) IsZero() bool {
	return a.Common() == (common.Address{})
}

// Short renders the display form: first 10 and last 8 characters.
func (a Address) Short() string {
	s := string(a)
	if len(s) <= 18 {
		return s
	}
	return s[:10] + "..." + s[len(s)-8:]
}

// Tier identifies which family of contract calls produced a probe result.
type Tier int

const (
	TierValidatorStruct Tier = iota + 1
	TierMembership
	TierCount
)

func (t Tier) String() string {
	switch t {
	case TierValidatorStruct:
		return "validator-struct"
	case TierMembership:
		return "membership"
	case TierCount:
		return "validator-count"
	}
	return "unknown"
}

// ProbeResult is the metadata recovered from the staking contract for one
// validator. Stake, Owner and Operator are nil when the accepted response did
// not carry them.
type ProbeResult struct {
	IsActive bool
	IsJailed bool
	Stake    *big.Int
	Owner    *Address
	Operator *Address

	Tier     Tier
	Selector string
	Note     string
}

// Producer returns the address that block production is attributed to: the
// operator when the contract exposed one, otherwise the validator itself.
func (r *ProbeResult) Producer(validator Address) Address {
	if r != nil && r.Operator != nil && !r.Operator.IsZero() {
		return *r.Operator
	}
	return validator
}
