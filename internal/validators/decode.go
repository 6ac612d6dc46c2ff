package validators

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const wordSize = 32

var (
	errEmptyResponse = errors.New("empty response")
	errAllZero       = errors.New("all-zero response")
	errTooShort      = errors.New("response too short")
	errReportedFalse = errors.New("contract reported false")

	// 1 OAS = 10^18 base units
	baseUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	addressSliceArgs = func() abi.Arguments {
		t, err := abi.NewType("address[]", "", nil)
		if err != nil {
			panic(err)
		}
		return abi.Arguments{{Type: t}}
	}()
)

// decoder turns a raw eth_call response into a probe result. A non-nil error
// means the response is not plausible for this candidate.
type decoder func(data []byte) (*ProbeResult, error)

func word(data []byte, i int) []byte {
	return data[i*wordSize : (i+1)*wordSize]
}

func isAllZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func optionalAddress(w []byte) *Address {
	a := addressFromCommon(common.BytesToAddress(w[wordSize-common.AddressLength:]))
	if a.IsZero() {
		return nil
	}
	return &a
}

// toDisplayUnit converts a base-unit stake to whole tokens when it is larger
// than one token. Smaller values are kept as-is.
func toDisplayUnit(stake *big.Int) *big.Int {
	if stake.Cmp(baseUnit) > 0 {
		return new(big.Int).Div(stake, baseUnit)
	}
	return stake
}

// decodeValidatorStruct parses a "validators(address)" style struct. Full
// structs are at least 8 words; shorter payloads of 2+ words fall back to a
// single stake value.
func decodeValidatorStruct(data []byte) (*ProbeResult, error) {
	if len(data) == 0 {
		return nil, errEmptyResponse
	}
	if len(data) < 2*wordSize {
		return nil, fmt.Errorf("%w: %d bytes", errTooShort, len(data))
	}
	if isAllZero(data) {
		return nil, errAllZero
	}

	if len(data) < 8*wordSize {
		lead := new(big.Int).SetBytes(word(data, 0))
		if lead.Sign() == 0 {
			return nil, fmt.Errorf("degraded struct with zero leading word (%d bytes)", len(data))
		}
		return &ProbeResult{
			IsActive: true,
			Stake:    toDisplayUnit(lead),
			Note:     "partial struct: stake only, jailed/owner/operator unknown",
		}, nil
	}

	stake := toDisplayUnit(new(big.Int).SetBytes(word(data, 0)))
	jailed := jailedFlag(data)

	return &ProbeResult{
		IsActive: stake.Sign() > 0 && !jailed,
		IsJailed: jailed,
		Stake:    stake,
		Owner:    optionalAddress(word(data, 1)),
		Operator: optionalAddress(word(data, 2)),
	}, nil
}

// jailedFlag checks the low byte of the last two words. The exact field
// position is not known for every deployment, so either one set counts.
func jailedFlag(data []byte) bool {
	n := len(data)
	return data[n-1] == 1 || data[n-1-wordSize] == 1
}

// decodeMembership parses an "isValidator(address)" style boolean.
func decodeMembership(data []byte) (*ProbeResult, error) {
	if len(data) == 0 {
		return nil, errEmptyResponse
	}
	b := data[0]
	if len(data) >= wordSize {
		b = data[len(data)-1]
	}
	if b != 1 {
		return nil, errReportedFalse
	}
	return &ProbeResult{IsActive: true}, nil
}

// decodeCount parses a bare uint256 validator count.
func decodeCount(data []byte) (*ProbeResult, error) {
	if len(data) < wordSize {
		return nil, fmt.Errorf("%w: %d bytes", errTooShort, len(data))
	}
	n := new(big.Int).SetBytes(word(data, 0))
	if n.Sign() == 0 {
		return nil, errAllZero
	}
	return countResult(n.String()), nil
}

// decodeListCount parses an address[] return value and uses its length.
func decodeListCount(data []byte) (*ProbeResult, error) {
	addrs, err := decodeAddressList(data)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, errors.New("empty validator list")
	}
	return countResult(fmt.Sprintf("%d", len(addrs))), nil
}

func countResult(count string) *ProbeResult {
	return &ProbeResult{
		IsActive: true,
		Note:     fmt.Sprintf("contract reports %s validators; per-address status unavailable", count),
	}
}

func decodeAddressList(data []byte) ([]Address, error) {
	if len(data) == 0 {
		return nil, errEmptyResponse
	}
	values, err := addressSliceArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack address[]: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unexpected number of return values: 0")
	}
	raw, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("failed to convert result to []common.Address")
	}
	out := make([]Address, 0, len(raw))
	for _, a := range raw {
		out = append(out, addressFromCommon(a))
	}
	return out, nil
}
