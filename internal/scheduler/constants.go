package scheduler

const (
	// JobEvaluate rebuilds and publishes the alert feed
	JobEvaluate = "evaluate"
	// JobCleanup prunes feed history past the retention window
	JobCleanup = "cleanup"
)
