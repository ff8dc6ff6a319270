package delegation

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swayfi/dca-engine/internal/constants"
)

// Validation failures. All of them are fatal: a failed check signals either
// a construction bug or an attempted scope escape and must never be
// silently corrected.
var (
	ErrMissingSignature   = errors.New("delegation signature is missing")
	ErrRevoked            = errors.New("delegation has been revoked")
	ErrNotYetValid        = errors.New("delegation is not yet valid")
	ErrExpired            = errors.New("delegation has expired")
	ErrCallsExhausted     = errors.New("delegation call limit exhausted")
	ErrTargetNotAllowed   = errors.New("call target is not in the delegation's allowed set")
	ErrSelectorNotAllowed = errors.New("call selector is not in the delegation's allowed set")
)

// CallRequest describes the call an executor wants to perform under a
// delegation, checked against every caveat before redemption.
type CallRequest struct {
	Target   common.Address
	Selector [4]byte
	Value    *big.Int
}

// Caveat is a single constraint attached to a delegation. A delegation is
// redeemable only if every attached caveat validates; composition is a
// logical AND.
type Caveat interface {
	Kind() string
	Validate(now time.Time, call CallRequest) error
}

// TimeWindowCaveat bounds redemption to [NotBefore, NotAfter]. Expiry is a
// derived, time-dependent property of this caveat, never a stored flag.
type TimeWindowCaveat struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (c TimeWindowCaveat) Kind() string { return "time_window" }

func (c TimeWindowCaveat) Validate(now time.Time, _ CallRequest) error {
	if !c.NotBefore.IsZero() && now.Before(c.NotBefore) {
		return ErrNotYetValid
	}
	if !c.NotAfter.IsZero() && now.After(c.NotAfter) {
		return ErrExpired
	}
	return nil
}

// CallLimitCaveat caps the number of redemptions. Used counts settled
// redemptions and comes from the ledger, not from the caveat itself.
type CallLimitCaveat struct {
	Limit int64
	Used  int64
}

func (c CallLimitCaveat) Kind() string { return "call_limit" }

func (c CallLimitCaveat) Validate(_ time.Time, _ CallRequest) error {
	if c.Limit-c.Used <= 0 {
		return ErrCallsExhausted
	}
	return nil
}

// AllowedTargetsCaveat restricts which contracts a redemption may call.
type AllowedTargetsCaveat struct {
	Targets []common.Address
}

func (c AllowedTargetsCaveat) Kind() string { return "allowed_targets" }

func (c AllowedTargetsCaveat) Validate(_ time.Time, call CallRequest) error {
	for _, target := range c.Targets {
		if target == call.Target {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTargetNotAllowed, call.Target.Hex())
}

// AllowedMethodsCaveat restricts which function selectors may be invoked.
type AllowedMethodsCaveat struct {
	Selectors [][4]byte
}

func (c AllowedMethodsCaveat) Kind() string { return "allowed_methods" }

func (c AllowedMethodsCaveat) Validate(_ time.Time, call CallRequest) error {
	for _, sel := range c.Selectors {
		if sel == call.Selector {
			return nil
		}
	}
	return fmt.Errorf("%w: 0x%x", ErrSelectorNotAllowed, call.Selector)
}

// Delegation is a signed, scoped capability granting the delegate the right
// to invoke specific functions on behalf of the delegator's smart account.
// Created when the user grants it; never mutated in place. Revocation
// invalidates it outright via Status.
type Delegation struct {
	Delegator common.Address // owner wallet
	Delegate  common.Address // executor identity
	Account   common.Address // smart account the calls are performed on
	Authority [32]byte       // parent authority, root when zero
	Caveats   []Caveat
	Salt      *big.Int
	Signature []byte
	Status    string
}

// Validate checks the delegation against a requested call at the given
// time. It re-implements off-chain the checks the authorization-redeeming
// contract performs on-chain, so the engine never spends gas on a call that
// is guaranteed to revert.
func (d *Delegation) Validate(now time.Time, call CallRequest) error {
	if len(d.Signature) == 0 {
		return ErrMissingSignature
	}
	if d.Status == constants.DelegationRevoked {
		return ErrRevoked
	}
	for _, caveat := range d.Caveats {
		if err := caveat.Validate(now, call); err != nil {
			return fmt.Errorf("caveat %s rejected the call: %w", caveat.Kind(), err)
		}
	}
	return nil
}

// Active reports whether the delegation could validate some call at the
// given time: signed, not revoked, within its time window, with call budget
// remaining. Used by the pipeline to filter eligible wallets.
func (d *Delegation) Active(now time.Time) bool {
	if len(d.Signature) == 0 || d.Status == constants.DelegationRevoked {
		return false
	}
	for _, caveat := range d.Caveats {
		switch c := caveat.(type) {
		case TimeWindowCaveat:
			if err := c.Validate(now, CallRequest{}); err != nil {
				return false
			}
		case CallLimitCaveat:
			if err := c.Validate(now, CallRequest{}); err != nil {
				return false
			}
		}
	}
	return true
}

// RemainingCalls returns the unused call budget, or -1 when the delegation
// carries no call-limit caveat.
func (d *Delegation) RemainingCalls() int64 {
	for _, caveat := range d.Caveats {
		if c, ok := caveat.(CallLimitCaveat); ok {
			if remaining := c.Limit - c.Used; remaining > 0 {
				return remaining
			}
			return 0
		}
	}
	return -1
}
