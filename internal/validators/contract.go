package validators

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/go-multierror"
	"lecca.io/oasys-watchtower/internal/logger"
)

// ErrProbeExhausted is returned when no candidate selector produced a
// plausible answer. The wrapped multierror lists every attempt.
var ErrProbeExhausted = errors.New("contract probe exhausted all selectors")

// Caller executes a read-only contract call at the latest block.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

type candidate struct {
	signature string
	selector  [4]byte
	takesAddr bool
	tier      Tier
	decode    decoder
}

func selectorOf(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

func newCandidate(tier Tier, signature string, takesAddr bool, decode decoder) candidate {
	return candidate{
		signature: signature,
		selector:  selectorOf(signature),
		takesAddr: takesAddr,
		tier:      tier,
		decode:    decode,
	}
}

// rawCandidate is used for selectors observed on chain whose signature is unknown.
func rawCandidate(tier Tier, selector string, takesAddr bool, decode decoder) candidate {
	var sel [4]byte
	copy(sel[:], hexutil.MustDecode(selector))
	return candidate{
		signature: selector,
		selector:  sel,
		takesAddr: takesAddr,
		tier:      tier,
		decode:    decode,
	}
}

func (c candidate) callData(addr Address) []byte {
	data := make([]byte, 0, 4+wordSize)
	data = append(data, c.selector[:]...)
	if c.takesAddr {
		data = append(data, common.LeftPadBytes(addr.Common().Bytes(), wordSize)...)
	}
	return data
}

// defaultCandidates lists every selector in priority order. Within a tier the
// first plausible response wins; later tiers only run when earlier ones fail.
func defaultCandidates() []candidate {
	return []candidate{
		newCandidate(TierValidatorStruct, "validators(address)", true, decodeValidatorStruct),
		newCandidate(TierValidatorStruct, "getValidatorInfo(address)", true, decodeValidatorStruct),
		rawCandidate(TierValidatorStruct, "0x5c622a0e", true, decodeValidatorStruct),
		newCandidate(TierValidatorStruct, "getValidator(address)", true, decodeValidatorStruct),

		newCandidate(TierMembership, "isValidator(address)", true, decodeMembership),
		newCandidate(TierMembership, "isActiveValidator(address)", true, decodeMembership),
		newCandidate(TierMembership, "isCurrentValidator(address)", true, decodeMembership),

		newCandidate(TierCount, "getValidatorCount()", false, decodeCount),
		newCandidate(TierCount, "validatorCount()", false, decodeCount),
		newCandidate(TierCount, "getValidators()", false, decodeListCount),
		newCandidate(TierCount, "getCurrentValidators()", false, decodeListCount),
	}
}

// listCandidates return address[] of registered validators.
func listCandidates() []candidate {
	return []candidate{
		newCandidate(TierCount, "getValidators()", false, nil),
		newCandidate(TierCount, "getCurrentValidators()", false, nil),
	}
}

// Prober resolves validator metadata from a staking contract whose exact ABI
// is not known, by trying candidate selectors in order.
type Prober struct {
	caller     Caller
	contract   common.Address
	candidates []candidate
}

func NewProber(caller Caller, contractAddr string) *Prober {
	return &Prober{
		caller:     caller,
		contract:   common.HexToAddress(contractAddr),
		candidates: defaultCandidates(),
	}
}

// Probe returns the first plausible result. Transport and decode failures on
// a candidate are recorded and the next candidate is tried; the returned
// error is only ever ErrProbeExhausted (or ctx cancellation) and callers
// treat it as "no metadata".
func (p *Prober) Probe(ctx context.Context, addr Address) (*ProbeResult, error) {
	var attempts *multierror.Error

	for _, c := range p.candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := p.caller.CallContract(ctx, p.contract, c.callData(addr))
		if err != nil {
			attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", c.signature, err))
			continue
		}

		res, err := c.decode(out)
		if err != nil {
			attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", c.signature, err))
			continue
		}

		res.Tier = c.tier
		res.Selector = c.signature
		logger.Debug("PROBE", "%s resolved via %s (%s)", addr.Short(), c.signature, c.tier)
		return res, nil
	}

	if attempts == nil {
		return nil, ErrProbeExhausted
	}
	return nil, fmt.Errorf("%w: %w", ErrProbeExhausted, attempts.ErrorOrNil())
}

// ListValidators is the best-effort registry lookup used when no addresses
// are configured.
func (p *Prober) ListValidators(ctx context.Context) ([]Address, error) {
	var attempts *multierror.Error

	for _, c := range listCandidates() {
		out, err := p.caller.CallContract(ctx, p.contract, c.callData(""))
		if err != nil {
			attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", c.signature, err))
			continue
		}
		addrs, err := decodeAddressList(out)
		if err != nil {
			attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", c.signature, err))
			continue
		}
		if len(addrs) == 0 {
			attempts = multierror.Append(attempts, fmt.Errorf("%s: empty list", c.signature))
			continue
		}
		logger.Info("REGISTRY", "Found %d validators via %s", len(addrs), c.signature)
		return addrs, nil
	}

	return nil, fmt.Errorf("failed to list validators: %w", attempts.ErrorOrNil())
}
