package models

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/elstonfarm/farmbooks_backend/utils"
)

func TestValidateSplit_PortionsMustSumToAmount(t *testing.T) {
	input := &ResolveItemInput{
		Status:          ItemStatusSplit,
		FarmPortion:     decPtr("40.00"),
		PersonalPortion: decPtr("20.00"),
	}

	farm, personal, err := input.validateSplit(dec("60.00"))
	if err != nil {
		t.Fatalf("valid split rejected: %v", err)
	}
	if !farm.Equal(dec("40.00")) || !personal.Equal(dec("20.00")) {
		t.Fatalf("portions = %s / %s", farm, personal)
	}

	_, _, err = input.validateSplit(dec("61.00"))
	if !utils.IsEngineErrorCode(err, utils.ErrorCodeInvalidSplit) {
		t.Fatalf("mismatched split: got %v, want InvalidSplit", err)
	}
}

func TestValidateSplit_ToleratesOneCentRounding(t *testing.T) {
	input := &ResolveItemInput{
		Status:          ItemStatusSplit,
		FarmPortion:     decPtr("33.33"),
		PersonalPortion: decPtr("33.33"),
	}
	if _, _, err := input.validateSplit(dec("66.67")); err != nil {
		t.Fatalf("one-cent rounding gap rejected: %v", err)
	}
	if _, _, err := input.validateSplit(dec("66.68")); err == nil {
		t.Fatal("two-cent gap accepted")
	}
}

func TestValidateSplit_RejectsMissingAndNegativePortions(t *testing.T) {
	missing := &ResolveItemInput{Status: ItemStatusSplit, FarmPortion: decPtr("10.00")}
	if _, _, err := missing.validateSplit(dec("10.00")); !utils.IsEngineErrorCode(err, utils.ErrorCodeInvalidSplit) {
		t.Fatalf("missing portion: got %v, want InvalidSplit", err)
	}

	negative := &ResolveItemInput{
		Status:          ItemStatusSplit,
		FarmPortion:     decPtr("-5.00"),
		PersonalPortion: decPtr("15.00"),
	}
	if _, _, err := negative.validateSplit(dec("10.00")); !utils.IsEngineErrorCode(err, utils.ErrorCodeInvalidSplit) {
		t.Fatalf("negative portion: got %v, want InvalidSplit", err)
	}
}

func TestValidateSplit_NonSplitClearsPortions(t *testing.T) {
	// A re-resolution away from split must not carry stale portions.
	input := &ResolveItemInput{
		Status:          ItemStatusFarm,
		FarmPortion:     decPtr("40.00"),
		PersonalPortion: decPtr("20.00"),
	}
	farm, personal, err := input.validateSplit(dec("60.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if farm != nil || personal != nil {
		t.Fatalf("portions not cleared: %v / %v", farm, personal)
	}
}

func TestSettledSessionRejectsItemMutations(t *testing.T) {
	settled := &ReconciliationSession{ID: 1, FiscalYear: 2023, Status: SessionStatusSettled}
	for _, verb := range []string{"add", "modify", "remove"} {
		err := settled.ensureItemsMutable(verb)
		if !utils.IsEngineErrorCode(err, utils.ErrorCodeSessionClosed) {
			t.Fatalf("%s: got %v, want SessionClosed", verb, err)
		}
		want := fmt.Sprintf("Session already settled. Cannot %s items.", verb)
		if err.Error() != want {
			t.Fatalf("%s: message %q, want %q", verb, err.Error(), want)
		}
	}

	open := &ReconciliationSession{ID: 2, FiscalYear: 2024, Status: SessionStatusOpen}
	if err := open.ensureItemsMutable("modify"); err != nil {
		t.Fatalf("open session rejected: %v", err)
	}
}

// guardedItemStore mirrors the write-time guard on item mutations: the write
// lands only if the parent session is still open, checked atomically with the
// write itself.
type guardedItemStore struct {
	mu       sync.Mutex
	status   SessionStatus
	resolves int
}

func (s *guardedItemStore) settle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SessionStatusOpen {
		return false
	}
	s.status = SessionStatusSettled
	return true
}

func (s *guardedItemStore) resolveItem() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != SessionStatusOpen {
		return false
	}
	s.resolves++
	return true
}

func TestResolveItem_Property_NoResolveLandsAfterSettlement(t *testing.T) {
	for run := 0; run < 100; run++ {
		store := &guardedItemStore{status: SessionStatusOpen}

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.resolveItem()
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.settle()
		}()
		wg.Wait()

		if store.status != SessionStatusSettled {
			t.Fatalf("run=%d session never settled", run)
		}
		before := store.resolves
		if store.resolveItem() {
			t.Fatalf("run=%d resolve landed on a settled session", run)
		}
		if store.resolves != before {
			t.Fatalf("run=%d resolve count moved after settlement", run)
		}
	}
}

func TestNewCommingledItem_Validate(t *testing.T) {
	valid := &NewCommingledItem{
		Date:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:      dec("47.93"),
		Description: "Dog toys",
		Direction:   DirectionPersonalOnFarm,
	}
	if err := valid.validate(); err != nil {
		t.Fatalf("valid item rejected: %v", err)
	}

	missingDescription := &NewCommingledItem{
		Date:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:    dec("47.93"),
		Direction: DirectionPersonalOnFarm,
	}
	if err := missingDescription.validate(); !utils.IsEngineErrorCode(err, utils.ErrorCodeValidation) {
		t.Fatalf("missing description: got %v, want ValidationError", err)
	}

	nonPositive := &NewCommingledItem{
		Date:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:      dec("-1.00"),
		Description: "Refund",
		Direction:   DirectionPersonalOnFarm,
	}
	if err := nonPositive.validate(); !utils.IsEngineErrorCode(err, utils.ErrorCodeValidation) {
		t.Fatalf("negative amount: got %v, want ValidationError", err)
	}
}
