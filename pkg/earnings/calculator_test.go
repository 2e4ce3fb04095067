package earnings

import (
	"errors"
	"testing"
)

const (
	testContentID = "content-1"
)

func basePolicy() RewardPolicy {
	return RewardPolicy{
		ContentID:        testContentID,
		TotalRewardCoins: 100,
		DurationSeconds:  600,
	}
}

func TestComputeSpreadsRewardOverDuration(test *testing.T) {
	test.Parallel()
	policy := basePolicy()

	delta, err := Compute(policy, 0, 300, 1)
	if err != nil {
		test.Fatalf("compute: %v", err)
	}
	if delta.UserCoins != 50 {
		test.Fatalf("expected 50 coins for half the duration, got %d", delta.UserCoins)
	}
	if delta.OwnerMillicents != 0 {
		test.Fatalf("expected no owner revenue without an owner rate, got %d", delta.OwnerMillicents)
	}
}

func TestComputeDeltasSumToCumulativeTotal(test *testing.T) {
	test.Parallel()
	policy := RewardPolicy{
		ContentID:        testContentID,
		TotalRewardCoins: 7,
		DurationSeconds:  100,
	}

	var summed int64
	var prior int64
	for _, reported := range []int64{13, 14, 50, 99, 100} {
		delta, err := Compute(policy, prior, reported, 1)
		if err != nil {
			test.Fatalf("compute %d->%d: %v", prior, reported, err)
		}
		if delta.UserCoins < 0 {
			test.Fatalf("negative delta %d for %d->%d", delta.UserCoins, prior, reported)
		}
		summed += delta.UserCoins
		prior = reported
	}
	if summed != policy.TotalRewardCoins {
		test.Fatalf("expected deltas to sum to %d, got %d", policy.TotalRewardCoins, summed)
	}
}

func TestComputeAppliesTierScalingToUserSideOnly(test *testing.T) {
	test.Parallel()
	policy := basePolicy()
	policy.OwnerRateMillicents = 2

	delta, err := Compute(policy, 0, 600, 3)
	if err != nil {
		test.Fatalf("compute: %v", err)
	}
	if delta.UserCoins != 120 {
		test.Fatalf("expected 100 coins scaled by 1.2 at level 3, got %d", delta.UserCoins)
	}
	if delta.OwnerMillicents != 1200 {
		test.Fatalf("owner revenue must not be tier scaled, got %d", delta.OwnerMillicents)
	}
}

func TestComputeCapsAccrualAtContentDuration(test *testing.T) {
	test.Parallel()
	policy := basePolicy()
	policy.OwnerRateMillicents = 1

	delta, err := Compute(policy, 500, 900, 1)
	if err != nil {
		test.Fatalf("compute: %v", err)
	}
	expected := int64(100) - 500*100/600
	if delta.UserCoins != expected {
		test.Fatalf("expected %d coins up to the cap, got %d", expected, delta.UserCoins)
	}
	if delta.OwnerMillicents != 100 {
		test.Fatalf("expected owner accrual capped at 100 seconds, got %d", delta.OwnerMillicents)
	}

	beyond, err := Compute(policy, 900, 1200, 1)
	if err != nil {
		test.Fatalf("compute beyond cap: %v", err)
	}
	if beyond.UserCoins != 0 || beyond.OwnerMillicents != 0 {
		test.Fatalf("expected zero accrual past the duration, got %+v", beyond)
	}
}

func TestComputeUsesRateOverrideWhenSet(test *testing.T) {
	test.Parallel()
	policy := basePolicy()
	policy.RatePerSecondMillicoins = 500

	delta, err := Compute(policy, 0, 10, 1)
	if err != nil {
		test.Fatalf("compute: %v", err)
	}
	if delta.UserCoins != 5 {
		test.Fatalf("expected 5 coins at 0.5 coins/second, got %d", delta.UserCoins)
	}
}

func TestComputeRejectsRewind(test *testing.T) {
	test.Parallel()
	policy := basePolicy()

	_, err := Compute(policy, 300, 200, 1)
	if !errors.Is(err, ErrNonMonotonicDuration) {
		test.Fatalf("expected ErrNonMonotonicDuration, got %v", err)
	}
}

func TestComputeInputValidation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		policy   RewardPolicy
		prior    int64
		reported int64
		level    int
		wantErr  error
	}{
		{
			name:    "empty content id",
			policy:  RewardPolicy{DurationSeconds: 10, TotalRewardCoins: 1},
			level:   1,
			wantErr: ErrInvalidPolicy,
		},
		{
			name:    "zero duration",
			policy:  RewardPolicy{ContentID: testContentID, TotalRewardCoins: 1},
			level:   1,
			wantErr: ErrInvalidPolicy,
		},
		{
			name:    "negative owner rate",
			policy:  RewardPolicy{ContentID: testContentID, TotalRewardCoins: 1, DurationSeconds: 10, OwnerRateMillicents: -1},
			level:   1,
			wantErr: ErrInvalidPolicy,
		},
		{
			name:    "negative prior duration",
			policy:  basePolicy(),
			prior:   -1,
			level:   1,
			wantErr: ErrInvalidDuration,
		},
		{
			name:    "level below one",
			policy:  basePolicy(),
			level:   0,
			wantErr: ErrInvalidLevel,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := Compute(testCase.policy, testCase.prior, testCase.reported, testCase.level)
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}
