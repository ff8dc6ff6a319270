package delegation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Execution is one encoded call performed under a delegation:
// (target, value, calldata).
type Execution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// EnforcerRegistry holds the addresses of the on-chain caveat enforcer
// contracts each caveat kind encodes against.
type EnforcerRegistry struct {
	Timestamp      common.Address
	LimitedCalls   common.Address
	AllowedTargets common.Address
	AllowedMethods common.Address
}

// redeemDelegations(bytes[] permissionContexts, bytes32[] modes, bytes[] executionCallDatas)
var redeemSelector = crypto.Keccak256([]byte("redeemDelegations(bytes[],bytes32[],bytes[])"))[:4]

// modeSingleDefault is the execution mode for a single immediate call.
var modeSingleDefault [32]byte

type packedCaveat struct {
	Enforcer common.Address
	Terms    []byte
	Args     []byte
}

type packedDelegation struct {
	Delegate  common.Address
	Delegator common.Address
	Authority [32]byte
	Caveats   []packedCaveat
	Salt      *big.Int
	Signature []byte
}

var (
	delegationArrayType abi.Type
	redeemArguments     abi.Arguments
)

func init() {
	var err error
	delegationArrayType, err = abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "delegate", Type: "address"},
		{Name: "delegator", Type: "address"},
		{Name: "authority", Type: "bytes32"},
		{Name: "caveats", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "enforcer", Type: "address"},
			{Name: "terms", Type: "bytes"},
			{Name: "args", Type: "bytes"},
		}},
		{Name: "salt", Type: "uint256"},
		{Name: "signature", Type: "bytes"},
	})
	if err != nil {
		panic("invalid delegation tuple type: " + err.Error())
	}

	bytesArrayType, err := abi.NewType("bytes[]", "", nil)
	if err != nil {
		panic("invalid bytes[] type: " + err.Error())
	}
	bytes32ArrayType, err := abi.NewType("bytes32[]", "", nil)
	if err != nil {
		panic("invalid bytes32[] type: " + err.Error())
	}

	redeemArguments = abi.Arguments{
		{Type: bytesArrayType},
		{Type: bytes32ArrayType},
		{Type: bytesArrayType},
	}
}

// encodeTerms produces the on-chain terms blob each enforcer expects.
func encodeTerms(caveat Caveat) ([]byte, error) {
	switch c := caveat.(type) {
	case TimeWindowCaveat:
		// two packed uint128s: after-threshold, before-threshold
		terms := make([]byte, 32)
		if !c.NotBefore.IsZero() {
			new(big.Int).SetInt64(c.NotBefore.Unix()).FillBytes(terms[:16])
		}
		if !c.NotAfter.IsZero() {
			new(big.Int).SetInt64(c.NotAfter.Unix()).FillBytes(terms[16:])
		}
		return terms, nil

	case CallLimitCaveat:
		terms := make([]byte, 32)
		new(big.Int).SetInt64(c.Limit).FillBytes(terms)
		return terms, nil

	case AllowedTargetsCaveat:
		terms := make([]byte, 0, len(c.Targets)*common.AddressLength)
		for _, target := range c.Targets {
			terms = append(terms, target.Bytes()...)
		}
		return terms, nil

	case AllowedMethodsCaveat:
		terms := make([]byte, 0, len(c.Selectors)*4)
		for _, sel := range c.Selectors {
			terms = append(terms, sel[:]...)
		}
		return terms, nil
	}

	return nil, fmt.Errorf("caveat kind %q has no on-chain encoding", caveat.Kind())
}

func enforcerFor(caveat Caveat, reg EnforcerRegistry) (common.Address, error) {
	switch caveat.(type) {
	case TimeWindowCaveat:
		return reg.Timestamp, nil
	case CallLimitCaveat:
		return reg.LimitedCalls, nil
	case AllowedTargetsCaveat:
		return reg.AllowedTargets, nil
	case AllowedMethodsCaveat:
		return reg.AllowedMethods, nil
	}
	return common.Address{}, fmt.Errorf("caveat kind %q has no enforcer", caveat.Kind())
}

// packPermissionContext ABI-encodes a delegation chain. The engine only
// issues root delegations, so the chain always has length one.
func packPermissionContext(d *Delegation, reg EnforcerRegistry) ([]byte, error) {
	caveats := make([]packedCaveat, 0, len(d.Caveats))
	for _, caveat := range d.Caveats {
		enforcer, err := enforcerFor(caveat, reg)
		if err != nil {
			return nil, err
		}
		terms, err := encodeTerms(caveat)
		if err != nil {
			return nil, err
		}
		caveats = append(caveats, packedCaveat{Enforcer: enforcer, Terms: terms, Args: []byte{}})
	}

	salt := d.Salt
	if salt == nil {
		salt = new(big.Int)
	}

	packed := []packedDelegation{{
		Delegate:  d.Delegate,
		Delegator: d.Delegator,
		Authority: d.Authority,
		Caveats:   caveats,
		Salt:      salt,
		Signature: d.Signature,
	}}

	args := abi.Arguments{{Type: delegationArrayType}}
	return args.Pack(packed)
}

// EncodeExecution packs a single execution as the manager expects for the
// single-call mode: 20-byte target, 32-byte value, then raw calldata.
func EncodeExecution(e Execution) []byte {
	value := e.Value
	if value == nil {
		value = new(big.Int)
	}
	out := make([]byte, 0, common.AddressLength+32+len(e.CallData))
	out = append(out, e.Target.Bytes()...)
	out = append(out, value.FillBytes(make([]byte, 32))...)
	out = append(out, e.CallData...)
	return out
}

// EncodeRedemption builds the full calldata for the authorization-redeeming
// contract: parallel lists of delegation proofs, execution modes (one
// immediate call per proof) and encoded calls.
func EncodeRedemption(dels []*Delegation, execs []Execution, reg EnforcerRegistry) ([]byte, error) {
	if len(dels) == 0 {
		return nil, fmt.Errorf("at least one delegation is required")
	}
	if len(dels) != len(execs) {
		return nil, fmt.Errorf("delegation and execution counts must match: %d != %d", len(dels), len(execs))
	}

	contexts := make([][]byte, 0, len(dels))
	modes := make([][32]byte, 0, len(dels))
	callDatas := make([][]byte, 0, len(execs))

	for i, d := range dels {
		ctx, err := packPermissionContext(d, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to pack permission context %d: %w", i, err)
		}
		contexts = append(contexts, ctx)
		modes = append(modes, modeSingleDefault)
		callDatas = append(callDatas, EncodeExecution(execs[i]))
	}

	packed, err := redeemArguments.Pack(contexts, modes, callDatas)
	if err != nil {
		return nil, fmt.Errorf("failed to pack redeemDelegations arguments: %w", err)
	}

	return append(append([]byte{}, redeemSelector...), packed...), nil
}
