package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitFees(t *testing.T) {
	tests := []struct {
		name        string
		gross       uint64
		treasuryBps uint16
		referralBps uint16
		wantNet     uint64
		wantTFee    uint64
		wantRFee    uint64
		wantErr     error
	}{
		{
			name:        "production rates",
			gross:       1000,
			treasuryBps: 140,
			referralBps: 60,
			wantNet:     980,
			wantTFee:    14,
			wantRFee:    6,
		},
		{
			name:        "truncation favors net",
			gross:       999,
			treasuryBps: 140,
			referralBps: 60,
			wantNet:     981, // 13.986 and 5.994 truncate down, remainder stays with net
			wantTFee:    13,
			wantRFee:    5,
		},
		{
			name:        "zero rates",
			gross:       1000,
			treasuryBps: 0,
			referralBps: 0,
			wantNet:     1000,
		},
		{
			name:        "full rate consumes gross",
			gross:       1000,
			treasuryBps: 10000,
			referralBps: 0,
			wantNet:     0,
			wantTFee:    1000,
		},
		{
			name:        "smallest amount",
			gross:       1,
			treasuryBps: 140,
			referralBps: 60,
			wantNet:     1,
		},
		{
			name:        "upper bound amount",
			gross:       MaxSplittableAmount,
			treasuryBps: 140,
			referralBps: 60,
			wantNet:     MaxSplittableAmount - MaxSplittableAmount*140/10000 - MaxSplittableAmount*60/10000,
			wantTFee:    MaxSplittableAmount * 140 / 10000,
			wantRFee:    MaxSplittableAmount * 60 / 10000,
		},
		{
			name:    "zero amount rejected",
			gross:   0,
			wantErr: ErrZeroAmount,
		},
		{
			name:        "rate sum above 10000 rejected",
			gross:       1000,
			treasuryBps: 9000,
			referralBps: 1001,
			wantErr:     ErrInvalidFeeRate,
		},
		{
			name:        "amount above bound rejected",
			gross:       MaxSplittableAmount + 1,
			treasuryBps: 140,
			referralBps: 60,
			wantErr:     ErrAmountTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, tFee, rFee, err := SplitFees(tt.gross, tt.treasuryBps, tt.referralBps)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantNet, net)
			assert.Equal(t, tt.wantTFee, tFee)
			assert.Equal(t, tt.wantRFee, rFee)
			assert.Equal(t, tt.gross, net+tFee+rFee, "split must be exact")
		})
	}
}

func TestSplitFeesDeterministic(t *testing.T) {
	n1, t1, r1, err1 := SplitFees(123456789, 140, 60)
	n2, t2, r2, err2 := SplitFees(123456789, 140, 60)
	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.Equal(t, n1, n2)
	assert.Equal(t, t1, t2)
	assert.Equal(t, r1, r2)
}

func TestAddRunningTotal(t *testing.T) {
	sum, err := AddRunningTotal(100, 50)
	assert.NoError(t, err)
	assert.Equal(t, uint64(150), sum)

	_, err = AddRunningTotal(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	sum, err = AddRunningTotal(math.MaxUint64-1, 1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), sum)
}
