package mission

import "errors"

// Sentinel kinds for ledger errors. Callers classify failures with
// errors.Is; InvalidContribution details travel via *ValidationError.
var (
	ErrMissionNotFound       = errors.New("mission not found")
	ErrMissionNotActive      = errors.New("mission not active")
	ErrMissionNotCompleted   = errors.New("mission not completed")
	ErrInvalidContribution   = errors.New("invalid contribution")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrRewardAlreadyClaimed  = errors.New("reward already claimed")
	ErrNoRewardTier          = errors.New("no reward tier earned")
	ErrConcurrencyConflict   = errors.New("concurrent update conflict")
	ErrInvalidMission        = errors.New("invalid mission definition")
)
