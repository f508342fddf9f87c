package domain

import "time"

// BotType distinguishes the bots whose webhook updates share the dedup store.
type BotType string

const (
	BotTypeShop  BotType = "shop"
	BotTypeAdmin BotType = "admin"
)

// DedupRecord tracks processing of one webhook update. A record with a nil
// ProcessedAt is in progress; once ProcessedAt is set the record is terminal.
type DedupRecord struct {
	BotType     BotType
	UpdateID    int64
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// DedupOutcome is the result of trying to claim an update for processing.
type DedupOutcome string

const (
	// DedupAcquired means the caller owns the update and must process it.
	DedupAcquired DedupOutcome = "acquired"
	// DedupAlreadyProcessed means the update finished earlier; drop it.
	DedupAlreadyProcessed DedupOutcome = "already_processed"
	// DedupInProgress means another worker is actively handling the update.
	DedupInProgress DedupOutcome = "in_progress"
)
