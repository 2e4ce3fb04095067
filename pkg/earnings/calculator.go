package earnings

import "fmt"

const (
	millicoinsPerCoin      = 1000
	tierScaleBase          = 10
	tierScalePerLevelTenth = 1
)

// RewardPolicy is the read-only reward configuration for one content item.
// It is owned by the content catalog; the calculator only consumes it.
type RewardPolicy struct {
	ContentID string

	// TotalRewardCoins spread evenly over DurationSeconds unless a
	// per-second override rate is set.
	TotalRewardCoins int64
	DurationSeconds  int64

	// RatePerSecondMillicoins, when positive, replaces the derived
	// TotalRewardCoins/DurationSeconds rate.
	RatePerSecondMillicoins int64

	// OwnerRateMillicents accrues to the platform per watched second,
	// independent of the user-side reward.
	OwnerRateMillicents int64
}

// Validate checks the policy is usable for accrual.
func (policy RewardPolicy) Validate() error {
	if policy.ContentID == "" {
		return fmt.Errorf("%w: empty content id", ErrInvalidPolicy)
	}
	if policy.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidPolicy)
	}
	if policy.TotalRewardCoins < 0 {
		return fmt.Errorf("%w: negative total reward", ErrInvalidPolicy)
	}
	if policy.RatePerSecondMillicoins < 0 {
		return fmt.Errorf("%w: negative rate override", ErrInvalidPolicy)
	}
	if policy.OwnerRateMillicents < 0 {
		return fmt.Errorf("%w: negative owner rate", ErrInvalidPolicy)
	}
	return nil
}

// Delta is the incremental accrual for one reporting interval. The caller
// applies it; the calculator never mutates accumulated totals.
type Delta struct {
	UserCoins       int64
	OwnerMillicents int64
}

// Compute maps one reported progress interval to user and owner deltas.
//
// Accrual is cumulative-floor based: the user-side total after s watched
// seconds is floor(rate*s), and the delta for [prior, new] is the difference
// of the two cumulative totals. Summing deltas over any split of the same
// interval therefore yields the identical total, which is what makes replay
// rejection at the caller sufficient to prevent double-crediting.
//
// Tier scaling (+10% per level above 1) applies to the user delta only.
func Compute(policy RewardPolicy, priorSeconds int64, newSeconds int64, level int) (Delta, error) {
	if err := policy.Validate(); err != nil {
		return Delta{}, err
	}
	if priorSeconds < 0 {
		return Delta{}, fmt.Errorf("%w: negative prior duration", ErrInvalidDuration)
	}
	if level < 1 {
		return Delta{}, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	if newSeconds < priorSeconds {
		return Delta{}, fmt.Errorf("%w: reported %ds after %ds", ErrNonMonotonicDuration, newSeconds, priorSeconds)
	}

	priorCapped := capSeconds(policy, priorSeconds)
	newCapped := capSeconds(policy, newSeconds)

	rawUserCoins := cumulativeCoins(policy, newCapped) - cumulativeCoins(policy, priorCapped)
	scaledUserCoins := rawUserCoins * int64(tierScaleBase+(level-1)*tierScalePerLevelTenth) / tierScaleBase

	return Delta{
		UserCoins:       scaledUserCoins,
		OwnerMillicents: (newCapped - priorCapped) * policy.OwnerRateMillicents,
	}, nil
}

// capSeconds bounds accrual at the content duration: watching past the end
// of the item earns nothing further on either side.
func capSeconds(policy RewardPolicy, seconds int64) int64 {
	if seconds > policy.DurationSeconds {
		return policy.DurationSeconds
	}
	return seconds
}

func cumulativeCoins(policy RewardPolicy, seconds int64) int64 {
	if policy.RatePerSecondMillicoins > 0 {
		return seconds * policy.RatePerSecondMillicoins / millicoinsPerCoin
	}
	return seconds * policy.TotalRewardCoins / policy.DurationSeconds
}
