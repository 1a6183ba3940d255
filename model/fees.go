package model

import (
	"errors"
	"math"
)

// Fee rates are expressed in basis points over MaxBasisPoints.
const MaxBasisPoints = 10000

// MaxSplittableAmount is the largest gross amount whose basis-point
// multiplication cannot overflow uint64. Callers must validate gross
// amounts against it before splitting.
const MaxSplittableAmount = math.MaxUint64 / MaxBasisPoints

var (
	ErrZeroAmount        = errors.New("gross amount must be greater than zero")
	ErrInvalidFeeRate    = errors.New("combined fee rates exceed 10000 basis points")
	ErrAmountTooLarge    = errors.New("gross amount exceeds splittable bound")
	ErrAmountOverflow    = errors.New("amount overflows running total")
	ErrInvalidCiphertext = errors.New("aggregate ciphertext has wrong size")
)

// SplitFees splits gross into a net payout and two fee shares. Each fee is
// floor(gross*rate/10000); the truncation remainder always accrues to net,
// never to the fee collectors. Deterministic and side-effect free.
func SplitFees(gross uint64, treasuryBps, referralBps uint16) (net, treasuryFee, referralFee uint64, err error) {
	if gross == 0 {
		return 0, 0, 0, ErrZeroAmount
	}
	if uint32(treasuryBps)+uint32(referralBps) > MaxBasisPoints {
		return 0, 0, 0, ErrInvalidFeeRate
	}
	if gross > MaxSplittableAmount {
		return 0, 0, 0, ErrAmountTooLarge
	}
	treasuryFee = gross * uint64(treasuryBps) / MaxBasisPoints
	referralFee = gross * uint64(referralBps) / MaxBasisPoints
	net = gross - treasuryFee - referralFee
	return net, treasuryFee, referralFee, nil
}

// AddRunningTotal returns total+gross or ErrAmountOverflow if the sum wraps.
func AddRunningTotal(total, gross uint64) (uint64, error) {
	if total > math.MaxUint64-gross {
		return 0, ErrAmountOverflow
	}
	return total + gross, nil
}
