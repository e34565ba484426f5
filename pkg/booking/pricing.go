package booking

import (
	"strings"
	"time"
)

// DepositFor prices the deposit for a booking. A deposit is required when the
// policy always asks for one, when the occasion is flagged, or when the party
// reaches the large-party threshold; the highest applicable amount wins.
func DepositFor(policy DepositPolicy, partySize int, occasion string) Deposit {
	deposit := Deposit{}
	if policy.Required {
		deposit.Required = true
		deposit.AmountCents = maxAmount(deposit.AmountCents, policy.AmountCents)
	}
	if isSpecialOccasion(policy, occasion) {
		deposit.Required = true
		deposit.AmountCents = maxAmount(deposit.AmountCents, policy.SpecialOccasionAmountCents, policy.AmountCents)
	}
	if policy.LargePartyThreshold > 0 && partySize >= policy.LargePartyThreshold {
		deposit.Required = true
		deposit.AmountCents = maxAmount(deposit.AmountCents, policy.LargePartyAmountCents, policy.AmountCents)
	}
	if deposit.AmountCents <= 0 {
		return Deposit{}
	}
	return deposit
}

func isSpecialOccasion(policy DepositPolicy, occasion string) bool {
	trimmed := strings.TrimSpace(occasion)
	if trimmed == "" {
		return false
	}
	for _, flagged := range policy.SpecialOccasions {
		if strings.EqualFold(strings.TrimSpace(flagged), trimmed) {
			return true
		}
	}
	return false
}

func maxAmount(amounts ...AmountCents) AmountCents {
	var result AmountCents
	for _, amount := range amounts {
		if amount > result {
			result = amount
		}
	}
	return result
}

// CancellationFee prices a cancellation of a captured deposit made at now.
// At or after the start the whole deposit is kept; inside the late window the
// policy percentage is kept; earlier cancellations are free.
func CancellationFee(policy CancellationPolicy, deposit Deposit, startsAt time.Time, now time.Time) AmountCents {
	if deposit.CapturedAt == nil || deposit.AmountCents <= 0 {
		return 0
	}
	if !now.Before(startsAt) {
		return deposit.AmountCents
	}
	if policy.LateWindow > 0 && startsAt.Sub(now) < policy.LateWindow {
		return deposit.AmountCents.Percent(policy.LateFeePercent)
	}
	return 0
}

// DefaultCancellationPolicy keeps half the deposit inside the last 24 hours.
func DefaultCancellationPolicy() CancellationPolicy {
	return CancellationPolicy{LateWindow: 24 * time.Hour, LateFeePercent: 50}
}
