package watch

// LevelForWatchSeconds derives a user's level from lifetime watch time:
// one level per full hour watched, starting at level 1.
func LevelForWatchSeconds(totalWatchSeconds int64) int {
	if totalWatchSeconds < 0 {
		return 1
	}
	return int(totalWatchSeconds/secondsPerLevel) + 1
}

// LevelBonusCoins is the one-time credit granted when a session end pushes
// the user to newLevel.
func LevelBonusCoins(newLevel int) int64 {
	return int64(newLevel) * levelBonusCoinsPerLevel
}
