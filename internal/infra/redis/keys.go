package redis

import "exam-grading-service/internal/domain"

const invalidationChannel = "leaderboard:invalidations"

func examKey(examID string) string {
	return "exam:" + examID + ":definition"
}

func leaderboardKey(examID string) string {
	return "leaderboard:exam:" + examID
}

func tagKey(scope domain.CacheScope) string {
	return "leaderboard:tag:" + scope.String()
}

func versionKey(scope domain.CacheScope) string {
	return "leaderboard:version:" + scope.String()
}
