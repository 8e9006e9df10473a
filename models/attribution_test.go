package models

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func item(direction ItemDirection, status ItemStatus, amount string) *CommingledItem {
	return &CommingledItem{
		Direction: direction,
		Status:    status,
		Amount:    dec(amount),
	}
}

func TestItemContribution_AllDirectionStatusPairs(t *testing.T) {
	cases := []struct {
		name               string
		item               *CommingledItem
		wantPersonalOnFarm string
		wantFarmOnPersonal string
	}{
		{"personal confirmed on farm account", item(DirectionPersonalOnFarm, ItemStatusPersonal, "47.93"), "47.93", "0"},
		{"farm confirmed on farm account", item(DirectionPersonalOnFarm, ItemStatusFarm, "47.93"), "0", "0"},
		{"farm confirmed on personal account", item(DirectionFarmOnPersonal, ItemStatusFarm, "89.99"), "0", "89.99"},
		{"personal confirmed on personal account", item(DirectionFarmOnPersonal, ItemStatusPersonal, "89.99"), "0", "0"},
		{"pending on farm account", item(DirectionPersonalOnFarm, ItemStatusPending, "25.00"), "0", "0"},
		{"pending on personal account", item(DirectionFarmOnPersonal, ItemStatusPending, "25.00"), "0", "0"},
		{"skipped on farm account", item(DirectionPersonalOnFarm, ItemStatusSkipped, "25.00"), "0", "0"},
		{"skipped on personal account", item(DirectionFarmOnPersonal, ItemStatusSkipped, "25.00"), "0", "0"},
	}

	for _, tc := range cases {
		personalOnFarm, farmOnPersonal := ItemContribution(tc.item)
		if !personalOnFarm.Equal(dec(tc.wantPersonalOnFarm)) {
			t.Fatalf("%s: personalOnFarm = %s, want %s", tc.name, personalOnFarm, tc.wantPersonalOnFarm)
		}
		if !farmOnPersonal.Equal(dec(tc.wantFarmOnPersonal)) {
			t.Fatalf("%s: farmOnPersonal = %s, want %s", tc.name, farmOnPersonal, tc.wantFarmOnPersonal)
		}
	}
}

func TestItemContribution_SplitAttributesMismatchedPortion(t *testing.T) {
	// A split on the farm account owes back its personal portion.
	onFarm := item(DirectionPersonalOnFarm, ItemStatusSplit, "60.00")
	onFarm.FarmPortion = decPtr("40.00")
	onFarm.PersonalPortion = decPtr("20.00")
	personalOnFarm, farmOnPersonal := ItemContribution(onFarm)
	if !personalOnFarm.Equal(dec("20.00")) || !farmOnPersonal.IsZero() {
		t.Fatalf("split on farm account: got (%s, %s), want (20.00, 0)", personalOnFarm, farmOnPersonal)
	}

	// A split on a personal account owes back its farm portion.
	onPersonal := item(DirectionFarmOnPersonal, ItemStatusSplit, "60.00")
	onPersonal.FarmPortion = decPtr("20.00")
	onPersonal.PersonalPortion = decPtr("40.00")
	personalOnFarm, farmOnPersonal = ItemContribution(onPersonal)
	if !personalOnFarm.IsZero() || !farmOnPersonal.Equal(dec("20.00")) {
		t.Fatalf("split on personal account: got (%s, %s), want (0, 20.00)", personalOnFarm, farmOnPersonal)
	}
}

func TestComputeTallies_FounderOwesFarm(t *testing.T) {
	items := []*CommingledItem{
		item(DirectionPersonalOnFarm, ItemStatusPersonal, "75.00"),
		item(DirectionPersonalOnFarm, ItemStatusPersonal, "25.00"),
		item(DirectionPersonalOnFarm, ItemStatusFarm, "310.00"),
	}

	tallies := ComputeTallies(items)
	if !tallies.PersonalOnFarm.Equal(dec("100.00")) {
		t.Fatalf("PersonalOnFarm = %s, want 100.00", tallies.PersonalOnFarm)
	}
	if !tallies.NetBalance.Equal(dec("100.00")) {
		t.Fatalf("NetBalance = %s, want 100.00", tallies.NetBalance)
	}
	if tallies.NetDirection != "founder_owes_farm" {
		t.Fatalf("NetDirection = %q", tallies.NetDirection)
	}
	if tallies.Summary != "Fred owes the farm $100.00" {
		t.Fatalf("Summary = %q", tallies.Summary)
	}
	if tallies.ResolvedCount != 3 || tallies.PendingCount != 0 {
		t.Fatalf("counts = resolved %d pending %d", tallies.ResolvedCount, tallies.PendingCount)
	}
}

func TestComputeTallies_SplitTipsBalanceToFounder(t *testing.T) {
	split := item(DirectionFarmOnPersonal, ItemStatusSplit, "60.00")
	split.FarmPortion = decPtr("20.00")
	split.PersonalPortion = decPtr("40.00")

	items := []*CommingledItem{split}
	tallies := ComputeTallies(items)
	if !tallies.FarmOnPersonal.Equal(dec("20.00")) {
		t.Fatalf("FarmOnPersonal = %s, want 20.00", tallies.FarmOnPersonal)
	}
	if !tallies.NetBalance.Equal(dec("-20.00")) {
		t.Fatalf("NetBalance = %s, want -20.00", tallies.NetBalance)
	}
	if tallies.NetDirection != "farm_owes_founder" {
		t.Fatalf("NetDirection = %q", tallies.NetDirection)
	}
	if tallies.Summary != "Farm owes Fred $20.00" {
		t.Fatalf("Summary = %q", tallies.Summary)
	}
}

func TestComputeTallies_AllSkippedIsEven(t *testing.T) {
	items := []*CommingledItem{
		item(DirectionPersonalOnFarm, ItemStatusSkipped, "12.00"),
		item(DirectionFarmOnPersonal, ItemStatusSkipped, "34.00"),
	}
	tallies := ComputeTallies(items)
	if !tallies.NetBalance.IsZero() {
		t.Fatalf("NetBalance = %s, want 0", tallies.NetBalance)
	}
	if tallies.NetDirection != "even" {
		t.Fatalf("NetDirection = %q", tallies.NetDirection)
	}
	if tallies.Summary != "Even — no settlement needed" {
		t.Fatalf("Summary = %q", tallies.Summary)
	}
	if tallies.SkippedCount != 2 || tallies.ResolvedCount != 0 {
		t.Fatalf("counts = skipped %d resolved %d", tallies.SkippedCount, tallies.ResolvedCount)
	}
}

// Property: for any mix of items, NetBalance always equals
// PersonalOnFarm - FarmOnPersonal and every total stays on cent boundaries.
func TestComputeTallies_Property_NetMatchesTotals(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	directions := []ItemDirection{DirectionPersonalOnFarm, DirectionFarmOnPersonal}
	statuses := []ItemStatus{ItemStatusPending, ItemStatusFarm, ItemStatusPersonal, ItemStatusSplit, ItemStatusSkipped}

	for run := 0; run < 200; run++ {
		n := rng.Intn(20) + 1
		items := make([]*CommingledItem, 0, n)
		for i := 0; i < n; i++ {
			cents := rng.Int63n(100000) + 1
			amount := decimal.New(cents, -2)
			it := &CommingledItem{
				Direction: directions[rng.Intn(len(directions))],
				Status:    statuses[rng.Intn(len(statuses))],
				Amount:    amount,
			}
			if it.Status == ItemStatusSplit {
				farmCents := rng.Int63n(cents + 1)
				farm := decimal.New(farmCents, -2)
				personal := amount.Sub(farm)
				it.FarmPortion = &farm
				it.PersonalPortion = &personal
			}
			items = append(items, it)
		}

		tallies := ComputeTallies(items)
		want := tallies.PersonalOnFarm.Sub(tallies.FarmOnPersonal).Round(2)
		if !tallies.NetBalance.Equal(want) {
			t.Fatalf("run=%d NetBalance = %s, want %s", run, tallies.NetBalance, want)
		}
		if !tallies.NetBalance.Equal(tallies.NetBalance.Round(2)) {
			t.Fatalf("run=%d NetBalance %s not on cent boundary", run, tallies.NetBalance)
		}
	}
}

func TestResolutionImpact_Sentences(t *testing.T) {
	split := item(DirectionPersonalOnFarm, ItemStatusSplit, "60.00")
	split.FarmPortion = decPtr("40.00")
	split.PersonalPortion = decPtr("20.00")

	cases := []struct {
		item *CommingledItem
		want string
	}{
		{item(DirectionPersonalOnFarm, ItemStatusPersonal, "47.93"), "Personal item on farm account → Farm is owed $47.93"},
		{item(DirectionPersonalOnFarm, ItemStatusFarm, "47.93"), "Was on farm account and IS a farm expense → no adjustment needed"},
		{item(DirectionFarmOnPersonal, ItemStatusFarm, "89.99"), "Farm item on personal account → Fred is owed $89.99"},
		{item(DirectionFarmOnPersonal, ItemStatusPersonal, "89.99"), "Was on personal account and IS personal → no adjustment needed"},
		{split, "Split: $40.00 farm / $20.00 personal"},
		{item(DirectionPersonalOnFarm, ItemStatusSkipped, "5.00"), "Skipped — will not affect settlement"},
	}
	for i, tc := range cases {
		if got := ResolutionImpact(tc.item); got != tc.want {
			t.Fatalf("case %d: got %q, want %q", i, got, tc.want)
		}
	}
}

func TestNetDirection(t *testing.T) {
	cases := []struct {
		balance string
		want    string
	}{
		{"100.00", "founder_owes_farm"},
		{"-0.01", "farm_owes_founder"},
		{"0", "even"},
	}
	for _, tc := range cases {
		if got := NetDirection(dec(tc.balance)); got != tc.want {
			t.Fatalf("NetDirection(%s) = %q, want %q", tc.balance, got, tc.want)
		}
	}
}

func TestComputeTallies_RepeatedRunsAreDeterministic(t *testing.T) {
	items := []*CommingledItem{
		item(DirectionPersonalOnFarm, ItemStatusPersonal, "19.99"),
		item(DirectionFarmOnPersonal, ItemStatusFarm, "7.50"),
		item(DirectionPersonalOnFarm, ItemStatusPending, "3.25"),
	}

	first := fmt.Sprintf("%+v", ComputeTallies(items))
	for run := 0; run < 50; run++ {
		if got := fmt.Sprintf("%+v", ComputeTallies(items)); got != first {
			t.Fatalf("run=%d tallies diverged:\n%s\nvs\n%s", run, got, first)
		}
	}
}
