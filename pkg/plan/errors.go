package plan

import "errors"

var (
	ErrUnknownTier   = errors.New("plan.unknown_tier")
	ErrInvalidPlan   = errors.New("plan.invalid")
	ErrParsingPlans  = errors.New("plan.parsing_failed")
	ErrEmptyCatalog  = errors.New("plan.empty_catalog")
	ErrDuplicateTier = errors.New("plan.duplicate_tier")
)
