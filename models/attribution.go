package models

import (
	"github.com/elstonfarm/farmbooks_backend/utils"
	"github.com/shopspring/decimal"
)

// attributionKey pairs what ingestion suspected with what the reviewer
// confirmed. Every tally decision in the engine goes through the exhaustive
// match below; session detail and settlement both call ComputeTallies, so the
// projected balance always equals the stamped one.
type attributionKey struct {
	Direction ItemDirection
	Status    ItemStatus
}

// ItemContribution returns what one item adds to the two settlement tallies:
// personalOnFarm (the farm is owed) and farmOnPersonal (the founder is owed).
//
// A full amount counts only when the confirmed status matches the suspected
// wrong direction. For splits, the portion the paying account did NOT own is
// attributed: a split on the farm account owes back its personal portion, a
// split on a personal account owes back its farm portion.
func ItemContribution(item *CommingledItem) (personalOnFarm, farmOnPersonal decimal.Decimal) {
	farmPortion := utils.DereferencePtr(item.FarmPortion)
	personalPortion := utils.DereferencePtr(item.PersonalPortion)

	switch (attributionKey{item.Direction, item.Status}) {
	case attributionKey{DirectionPersonalOnFarm, ItemStatusPersonal}:
		// Confirmed personal on the farm account: farm is owed the full amount.
		return item.Amount, decimal.Zero
	case attributionKey{DirectionPersonalOnFarm, ItemStatusFarm}:
		// Suspicion was wrong; it really was a farm expense.
		return decimal.Zero, decimal.Zero
	case attributionKey{DirectionPersonalOnFarm, ItemStatusSplit}:
		// Farm account paid the personal share.
		return personalPortion, decimal.Zero
	case attributionKey{DirectionFarmOnPersonal, ItemStatusFarm}:
		// Confirmed farm expense on a personal account: founder is owed the full amount.
		return decimal.Zero, item.Amount
	case attributionKey{DirectionFarmOnPersonal, ItemStatusPersonal}:
		// Suspicion was wrong; it really was personal.
		return decimal.Zero, decimal.Zero
	case attributionKey{DirectionFarmOnPersonal, ItemStatusSplit}:
		// Personal account paid the farm share.
		return decimal.Zero, farmPortion
	case attributionKey{DirectionPersonalOnFarm, ItemStatusSkipped},
		attributionKey{DirectionFarmOnPersonal, ItemStatusSkipped},
		attributionKey{DirectionPersonalOnFarm, ItemStatusPending},
		attributionKey{DirectionFarmOnPersonal, ItemStatusPending}:
		return decimal.Zero, decimal.Zero
	}
	// Unreachable for valid records; rows with an unknown direction contribute nothing.
	return decimal.Zero, decimal.Zero
}

type SessionTallies struct {
	PersonalOnFarm decimal.Decimal `json:"personal_on_farm"`
	FarmOnPersonal decimal.Decimal `json:"farm_on_personal"`
	// NetBalance = PersonalOnFarm - FarmOnPersonal, rounded to cents.
	// Positive: the founder owes the farm. Negative: the farm owes the founder.
	NetBalance    decimal.Decimal `json:"net_balance"`
	NetDirection  string          `json:"net_direction"`
	Summary       string          `json:"summary"`
	ItemCount     int             `json:"item_count"`
	PendingCount  int             `json:"pending_count"`
	ResolvedCount int             `json:"resolved_count"`
	SkippedCount  int             `json:"skipped_count"`
}

// ComputeTallies derives the running totals from current item state. This is
// the single attribution algorithm: session detail shows its output live, and
// settlement stamps the same output onto the session.
func ComputeTallies(items []*CommingledItem) SessionTallies {
	t := SessionTallies{
		PersonalOnFarm: decimal.Zero,
		FarmOnPersonal: decimal.Zero,
		ItemCount:      len(items),
	}
	for _, item := range items {
		switch {
		case item.Status == ItemStatusPending:
			t.PendingCount++
		case item.Status == ItemStatusSkipped:
			t.SkippedCount++
		case item.Status.IsResolved():
			t.ResolvedCount++
		}
		personalOnFarm, farmOnPersonal := ItemContribution(item)
		t.PersonalOnFarm = t.PersonalOnFarm.Add(personalOnFarm)
		t.FarmOnPersonal = t.FarmOnPersonal.Add(farmOnPersonal)
	}
	t.PersonalOnFarm = t.PersonalOnFarm.Round(2)
	t.FarmOnPersonal = t.FarmOnPersonal.Round(2)
	t.NetBalance = t.PersonalOnFarm.Sub(t.FarmOnPersonal).Round(2)
	t.NetDirection = NetDirection(t.NetBalance)
	t.Summary = TallySummary(t.NetBalance)
	return t
}

func NetDirection(netBalance decimal.Decimal) string {
	switch {
	case netBalance.IsPositive():
		return "founder_owes_farm"
	case netBalance.IsNegative():
		return "farm_owes_founder"
	default:
		return "even"
	}
}

func TallySummary(netBalance decimal.Decimal) string {
	switch {
	case netBalance.IsPositive():
		return "Fred owes the farm $" + utils.Money(netBalance.Abs())
	case netBalance.IsNegative():
		return "Farm owes Fred $" + utils.Money(netBalance.Abs())
	default:
		return "Even — no settlement needed"
	}
}

// ResolutionImpact states, in plain language, what a freshly resolved item
// means for the eventual settlement. Returned alongside the updated item so
// the review UI can show the dollar effect of each swipe.
func ResolutionImpact(item *CommingledItem) string {
	switch (attributionKey{item.Direction, item.Status}) {
	case attributionKey{DirectionFarmOnPersonal, ItemStatusFarm}:
		return "Farm item on personal account → Fred is owed $" + utils.Money(item.Amount)
	case attributionKey{DirectionPersonalOnFarm, ItemStatusFarm}:
		return "Was on farm account and IS a farm expense → no adjustment needed"
	case attributionKey{DirectionPersonalOnFarm, ItemStatusPersonal}:
		return "Personal item on farm account → Farm is owed $" + utils.Money(item.Amount)
	case attributionKey{DirectionFarmOnPersonal, ItemStatusPersonal}:
		return "Was on personal account and IS personal → no adjustment needed"
	case attributionKey{DirectionPersonalOnFarm, ItemStatusSplit},
		attributionKey{DirectionFarmOnPersonal, ItemStatusSplit}:
		return "Split: $" + utils.Money(utils.DereferencePtr(item.FarmPortion)) + " farm / $" +
			utils.Money(utils.DereferencePtr(item.PersonalPortion)) + " personal"
	case attributionKey{DirectionPersonalOnFarm, ItemStatusSkipped},
		attributionKey{DirectionFarmOnPersonal, ItemStatusSkipped}:
		return "Skipped — will not affect settlement"
	}
	return ""
}
