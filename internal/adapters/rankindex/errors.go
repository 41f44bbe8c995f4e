package rankindex

import "errors"

// Sentinel kinds for rank index errors.
var (
	ErrNotFound     = errors.New("participant not on board")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
)
