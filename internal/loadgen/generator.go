package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/puzzlerank/pkg/logger"
)

// Constants for random number generation.
const (
	eventIDDivisor    = 10000
	playerTierDivisor = 8
	puzzlePoolSize    = 20
)

// Constants for point generation ranges.
const (
	commonSolveMin    = 10
	commonSolveRange  = 40
	hardSolveMin      = 50
	hardSolveRange    = 50
	trivialSolveMin   = 1
	trivialSolveRange = 9
	bonusSolveMin     = 100
	bonusSolveRange   = 150
	speedSolveMin     = 25
	speedSolveRange   = 25
	comboSolveMin     = 60
	comboSolveRange   = 40
	retrySolveMin     = 5
	retrySolveRange   = 15
	wideSolveMin      = 1
	wideSolveRange    = 249
)

// Constants for solve type cases.
const (
	caseCommonSolve  = 0
	caseHardSolve    = 1
	caseTrivialSolve = 2
	caseBonusSolve   = 3
	caseSpeedSolve   = 4
	caseComboSolve   = 5
	caseRetrySolve   = 6
	caseWideSolve    = 7
)

// getRandomInt returns a random int64 in [0, n) using crypto/rand.
func getRandomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// generateEvents creates the specified number of score events spread
// across a fixed pool of players.
func generateEvents(ctx context.Context, config *Config, stats *Stats) ([]Event, error) {
	logger.Get().Info(ctx, "generating score events",
		logger.Int("numEvents", config.NumEvents),
		logger.Int("numPlayers", config.NumPlayers))

	events := make([]Event, config.NumEvents)

	// Pre-allocate player IDs so events can share players
	playerIDs := make([]string, config.NumPlayers)
	for i := 0; i < config.NumPlayers; i++ {
		playerIDs[i] = uuid.New().String()
	}

	// Generate events concurrently
	type eventResult struct {
		index int
		event Event
		err   error
	}

	resultChan := make(chan eventResult, config.NumEvents)

	// Use worker pool for event generation
	workerCount := minInt(config.Workers, config.NumEvents)
	eventsPerWorker := config.NumEvents / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * eventsPerWorker
		end := start + eventsPerWorker
		if worker == workerCount-1 {
			end = config.NumEvents // Last worker gets remaining events
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- eventResult{index: i, err: ctx.Err()}
					return
				default:
					playerID := playerIDs[getRandomInt(int64(len(playerIDs)))]
					event := generateSingleEvent(i, config.WindowID, playerID)
					resultChan <- eventResult{index: i, event: event, err: nil}
				}
			}
		}(start, end)
	}

	// Collect results
	for i := 0; i < config.NumEvents; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during event generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate event %d: %w", result.index, result.err)
			}
			events[result.index] = result.event
		}
	}

	stats.EventsGenerated = len(events)
	logger.Get().Info(ctx, "generated events successfully", logger.Int("count", len(events)))

	return events, nil
}

// generateSingleEvent creates a single delta score event for the given player.
func generateSingleEvent(index int, windowID, playerID string) Event {
	points := generateVariedPoints()

	puzzleID := "puzzle-" + strconv.FormatInt(getRandomInt(puzzlePoolSize), 10)

	// Current timestamp in RFC3339 format
	timestamp := time.Now().UTC().Format(time.RFC3339)

	// Generate unique event ID
	eventID := "event_" + strconv.FormatInt(int64(index), 10) + "_" + strconv.FormatInt(time.Now().Unix(), 10) + "_" + strconv.FormatInt(getRandomInt(eventIDDivisor), 10)

	return Event{
		EventID:  eventID,
		PlayerID: playerID,
		WindowID: windowID,
		PuzzleID: puzzleID,
		Kind:     "delta",
		Points:   points,
		TS:       timestamp,
	}
}

// generateVariedPoints creates a point value with varied distribution.
func generateVariedPoints() int64 {
	switch getRandomInt(playerTierDivisor) {
	case caseCommonSolve:
		// Common puzzle solves (10 - 50) - most frequent
		return commonSolveMin + getRandomInt(commonSolveRange)
	case caseHardSolve:
		// Hard puzzle solves (50 - 100)
		return hardSolveMin + getRandomInt(hardSolveRange)
	case caseTrivialSolve:
		// Trivial solves (1 - 10)
		return trivialSolveMin + getRandomInt(trivialSolveRange)
	case caseBonusSolve:
		// Bonus rounds (100 - 250) - rare
		return bonusSolveMin + getRandomInt(bonusSolveRange)
	case caseSpeedSolve:
		// Speed bonuses (25 - 50)
		return speedSolveMin + getRandomInt(speedSolveRange)
	case caseComboSolve:
		// Combo streaks (60 - 100)
		return comboSolveMin + getRandomInt(comboSolveRange)
	case caseRetrySolve:
		// Retried solves with penalty (5 - 20)
		return retrySolveMin + getRandomInt(retrySolveRange)
	case caseWideSolve:
		// Random across full range (1 - 250)
		return wideSolveMin + getRandomInt(wideSolveRange)
	default:
		return wideSolveMin + getRandomInt(wideSolveRange)
	}
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
