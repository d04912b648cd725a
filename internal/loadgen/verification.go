package loadgen

import (
	"fmt"
	"log"
	"sort"
)

// verifyResults checks the server-side rankings and leaderboard against
// the totals implied by the submitted delta events.
func verifyResults(config *Config, events []Event, rankings, leaderboard []Entry, stats *Stats) error {
	log.Println("verifying results...")

	if len(rankings) == 0 {
		return fmt.Errorf("no rankings to verify")
	}

	// All generated events are deltas, so each player's expected score is
	// the sum of their submitted points.
	expected := make(map[string]int64, config.NumPlayers)
	for _, event := range events {
		expected[event.PlayerID] += event.Points
	}

	mismatches := 0
	for _, entry := range rankings {
		if want, ok := expected[entry.PlayerID]; ok && entry.Score != want {
			mismatches++
			if config.Verbose {
				log.Printf("score mismatch for %s: server %d, expected %d", entry.PlayerID, entry.Score, want)
			}
		}
	}
	if mismatches > 0 {
		log.Printf("score mismatch warning: %d of %d players differ from submitted totals", mismatches, len(rankings))
	} else {
		log.Println("all server scores match submitted totals")
	}

	// Sort rankings by score (descending) to get top performers
	sortedRankings := make([]Entry, len(rankings))
	copy(sortedRankings, rankings)
	sort.Slice(sortedRankings, func(i, j int) bool {
		return sortedRankings[i].Score > sortedRankings[j].Score
	})

	// Verify leaderboard consistency if we have leaderboard data
	if len(leaderboard) > 0 {
		if err := verifyLeaderboardConsistency(sortedRankings, leaderboard); err != nil {
			log.Printf("leaderboard consistency warning: %v", err)
		} else {
			log.Println("leaderboard consistency verified")
		}
	}

	// Display top performers
	displayTopPerformers(sortedRankings, leaderboard, config.Verbose)

	log.Println("result verification completed")
	return nil
}

// verifyLeaderboardConsistency checks if leaderboard matches top rankings.
func verifyLeaderboardConsistency(sortedRankings, leaderboard []Entry) error {
	if len(leaderboard) == 0 {
		return fmt.Errorf("empty leaderboard")
	}

	// Check if top entry in leaderboard matches highest ranked player
	topRanking := sortedRankings[0]
	topLeaderboard := leaderboard[0]

	if topRanking.Score != topLeaderboard.Score {
		return fmt.Errorf("top leaderboard score (%d) does not match top ranked score (%d)",
			topLeaderboard.Score, topRanking.Score)
	}

	// Check if leaderboard is properly sorted
	for i := 1; i < len(leaderboard); i++ {
		if leaderboard[i].Score > leaderboard[i-1].Score {
			return fmt.Errorf("leaderboard not properly sorted: entry %d has higher score than entry %d",
				i, i-1)
		}
		// Equal scores break ties by earliest achievement
		if leaderboard[i].Score == leaderboard[i-1].Score &&
			leaderboard[i].AchievedAtMS < leaderboard[i-1].AchievedAtMS {
			return fmt.Errorf("tie between entries %d and %d not broken by earliest achievement", i-1, i)
		}
	}

	return nil
}

// displayTopPerformers shows the top performers from rankings and leaderboard.
func displayTopPerformers(sortedRankings, leaderboard []Entry, verbose bool) {
	topN := 10
	if len(sortedRankings) < topN {
		topN = len(sortedRankings)
	}

	log.Printf("top %d players from rankings:", topN)
	for i := 0; i < topN; i++ {
		entry := sortedRankings[i]
		log.Printf("   %d. %s - Score: %d", i+1, entry.PlayerID, entry.Score)
	}

	if len(leaderboard) > 0 {
		leaderboardTopN := topN
		if len(leaderboard) < leaderboardTopN {
			leaderboardTopN = len(leaderboard)
		}

		log.Printf("top %d players from leaderboard:", leaderboardTopN)
		for i := 0; i < leaderboardTopN; i++ {
			entry := leaderboard[i]
			log.Printf("   %d. %s - Score: %d", entry.Rank, entry.PlayerID, entry.Score)
		}
	}

	if verbose {
		// Show some statistics
		if len(sortedRankings) > 0 {
			avgScore := calculateAverageScore(sortedRankings)
			maxScore := sortedRankings[0].Score
			minScore := sortedRankings[len(sortedRankings)-1].Score

			log.Printf(`score statistics:
   Average: %.1f
   Maximum: %d
   Minimum: %d
`, avgScore, maxScore, minScore)
		}
	}
}

// calculateAverageScore calculates the average score from rankings.
func calculateAverageScore(rankings []Entry) float64 {
	if len(rankings) == 0 {
		return 0
	}

	var sum int64
	for _, entry := range rankings {
		sum += entry.Score
	}

	return float64(sum) / float64(len(rankings))
}
