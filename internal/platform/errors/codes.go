// Package errors provides structured error handling for engine operations.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeLostRace Code = "LOST_RACE"

	// Precondition errors
	CodeInsufficientFunds        Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientActionPoints Code = "INSUFFICIENT_ACTION_POINTS"
	CodeInvalidTarget            Code = "INVALID_TARGET"
	CodeAlreadyPresent           Code = "ALREADY_PRESENT"

	// Tree attachment errors, one per violated attach predicate
	CodeKindNotAllowed    Code = "TREE_KIND_NOT_ALLOWED"
	CodeNotProvided       Code = "TREE_NOT_PROVIDED"
	CodeLevelLocked       Code = "TREE_LEVEL_LOCKED"
	CodeDuplicateEntity   Code = "TREE_DUPLICATE_ENTITY"
	CodeRequirementsUnmet Code = "TREE_REQUIREMENTS_UNMET"
	CodeSlotsFull         Code = "TREE_SLOTS_FULL"
	CodeSlotOccupied      Code = "TREE_SLOT_OCCUPIED"

	// Ruleset errors indicate inconsistent content, a bug rather than a
	// user-correctable request.
	CodeRulesLookup         Code = "RULES_LOOKUP_FAILURE"
	CodeRulesVersionUnknown Code = "RULES_VERSION_UNKNOWN"
)

// Retryable reports whether a caller may retry the identical request.
// Only the optimistic-concurrency loser code qualifies; every other code
// requires the caller to change the request first.
func (c Code) Retryable() bool {
	return c == CodeLostRace
}

// Precondition reports whether the code names a failed operation
// precondition, including the per-predicate tree attachment codes.
func (c Code) Precondition() bool {
	switch c {
	case CodeInsufficientFunds, CodeInsufficientActionPoints,
		CodeInvalidTarget, CodeAlreadyPresent,
		CodeKindNotAllowed, CodeNotProvided, CodeLevelLocked,
		CodeDuplicateEntity, CodeRequirementsUnmet,
		CodeSlotsFull, CodeSlotOccupied:
		return true
	}
	return false
}
