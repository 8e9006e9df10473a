package models

import "errors"

type SessionStatus string

const (
	SessionStatusOpen    SessionStatus = "open"
	SessionStatusSettled SessionStatus = "settled"
)

func (s *SessionStatus) UnmarshalJSON(b []byte) error {
	str, err := unquote(b)
	if err != nil {
		return errors.New("session status must be string")
	}
	switch str {
	case "open":
		*s = SessionStatusOpen
	case "settled":
		*s = SessionStatusSettled
	default:
		return errors.New("invalid session status")
	}
	return nil
}

// ItemDirection is the ingestion-time hypothesis: which way the purchase is
// suspected to be commingled. A human confirms or corrects it via ItemStatus.
type ItemDirection string

const (
	DirectionPersonalOnFarm ItemDirection = "personal_on_farm"
	DirectionFarmOnPersonal ItemDirection = "farm_on_personal"
)

func (d *ItemDirection) UnmarshalJSON(b []byte) error {
	str, err := unquote(b)
	if err != nil {
		return errors.New("direction must be string")
	}
	switch str {
	case "personal_on_farm":
		*d = DirectionPersonalOnFarm
	case "farm_on_personal":
		*d = DirectionFarmOnPersonal
	default:
		return errors.New("direction must be personal_on_farm or farm_on_personal")
	}
	return nil
}

// ItemStatus is the human-confirmed classification. pending is the only
// non-terminal status; the other four permit settlement.
type ItemStatus string

const (
	ItemStatusPending  ItemStatus = "pending"
	ItemStatusFarm     ItemStatus = "farm"
	ItemStatusPersonal ItemStatus = "personal"
	ItemStatusSplit    ItemStatus = "split"
	ItemStatusSkipped  ItemStatus = "skipped"
)

func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusFarm || s == ItemStatusPersonal || s == ItemStatusSplit || s == ItemStatusSkipped
}

// IsResolved reports whether the item counts toward resolution progress
// (skipped items are excluded from both progress and tallies).
func (s ItemStatus) IsResolved() bool {
	return s == ItemStatusFarm || s == ItemStatusPersonal || s == ItemStatusSplit
}

func (s *ItemStatus) UnmarshalJSON(b []byte) error {
	str, err := unquote(b)
	if err != nil {
		return errors.New("item status must be string")
	}
	itemStatuses := map[string]ItemStatus{
		"pending":  ItemStatusPending,
		"farm":     ItemStatusFarm,
		"personal": ItemStatusPersonal,
		"split":    ItemStatusSplit,
		"skipped":  ItemStatusSkipped,
	}
	v, ok := itemStatuses[str]
	if !ok {
		return errors.New("invalid item status")
	}
	*s = v
	return nil
}

type ItemSource string

const (
	ItemSourceManual    ItemSource = "manual"
	ItemSourceAiFlagged ItemSource = "ai_flagged"
	ItemSourceScanner   ItemSource = "scanner"
)

func (s *ItemSource) UnmarshalJSON(b []byte) error {
	str, err := unquote(b)
	if err != nil {
		return errors.New("item source must be string")
	}
	itemSources := map[string]ItemSource{
		"manual":     ItemSourceManual,
		"ai_flagged": ItemSourceAiFlagged,
		"scanner":    ItemSourceScanner,
	}
	v, ok := itemSources[str]
	if !ok {
		return errors.New("invalid item source")
	}
	*s = v
	return nil
}

type SettlementResolution string

const (
	ResolutionDonationToFarm         SettlementResolution = "donation_to_farm"
	ResolutionReimbursementToFounder SettlementResolution = "reimbursement_to_founder"
	ResolutionDonationFromFounder    SettlementResolution = "donation_from_founder"
	ResolutionZeroBalance            SettlementResolution = "zero_balance"
)

func (r *SettlementResolution) UnmarshalJSON(b []byte) error {
	str, err := unquote(b)
	if err != nil {
		return errors.New("resolution must be string")
	}
	resolutions := map[string]SettlementResolution{
		"donation_to_farm":         ResolutionDonationToFarm,
		"reimbursement_to_founder": ResolutionReimbursementToFounder,
		"donation_from_founder":    ResolutionDonationFromFounder,
		"zero_balance":             ResolutionZeroBalance,
	}
	v, ok := resolutions[str]
	if !ok {
		return errors.New("resolution must be one of: donation_to_farm, reimbursement_to_founder, donation_from_founder, zero_balance")
	}
	*r = v
	return nil
}

type AccountPlatform string

const (
	PlatformAmazon        AccountPlatform = "amazon"
	PlatformChewy         AccountPlatform = "chewy"
	PlatformTractorSupply AccountPlatform = "tractor_supply"
	PlatformCard          AccountPlatform = "card"
	PlatformSubscription  AccountPlatform = "subscription"
	PlatformOther         AccountPlatform = "other"
)

func (p *AccountPlatform) UnmarshalJSON(b []byte) error {
	str, err := unquote(b)
	if err != nil {
		return errors.New("platform must be string")
	}
	platforms := map[string]AccountPlatform{
		"amazon":         PlatformAmazon,
		"chewy":          PlatformChewy,
		"tractor_supply": PlatformTractorSupply,
		"card":           PlatformCard,
		"subscription":   PlatformSubscription,
		"other":          PlatformOther,
	}
	v, ok := platforms[str]
	if !ok {
		return errors.New("invalid platform")
	}
	*p = v
	return nil
}

type LedgerEntryType string

const (
	LedgerEntryTypeIncome  LedgerEntryType = "income"
	LedgerEntryTypeExpense LedgerEntryType = "expense"
)

func (t *LedgerEntryType) UnmarshalJSON(b []byte) error {
	str, err := unquote(b)
	if err != nil {
		return errors.New("ledger entry type must be string")
	}
	switch str {
	case "income":
		*t = LedgerEntryTypeIncome
	case "expense":
		*t = LedgerEntryTypeExpense
	default:
		return errors.New("invalid ledger entry type")
	}
	return nil
}

type LedgerEntryStatus string

const (
	LedgerEntryStatusRecorded LedgerEntryStatus = "recorded"
	LedgerEntryStatusVerified LedgerEntryStatus = "verified"
	LedgerEntryStatusFlagged  LedgerEntryStatus = "flagged"
)

func unquote(b []byte) (string, error) {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return "", errors.New("not a JSON string")
	}
	return string(b[1 : len(b)-1]), nil
}
