package routine

// graceSeconds is how far past a task's time limit a child can finish and
// still earn half credit.
const graceSeconds = 60

// ScoreTask computes the points awarded for one task. A task with no time
// limit (scheduledSeconds <= 0) always earns full credit; finishing within
// the limit earns full credit; finishing within the grace window earns half
// credit rounded up, never less than 1; anything later earns nothing.
func ScoreTask(pointValue, scheduledSeconds, actualSeconds int) int {
	if pointValue <= 0 {
		return 0
	}
	if scheduledSeconds <= 0 {
		return pointValue
	}
	if actualSeconds <= scheduledSeconds {
		return pointValue
	}
	if actualSeconds <= scheduledSeconds+graceSeconds {
		half := (pointValue + 1) / 2
		if half < 1 {
			half = 1
		}
		return half
	}
	return 0
}

// StarsForTask rates a completion 1-3 stars on the same boundaries ScoreTask
// uses: 3 on time (or untimed), 2 within the grace window, 1 past it.
func StarsForTask(scheduledSeconds, actualSeconds int) int {
	if scheduledSeconds <= 0 {
		return 3
	}
	over := actualSeconds - scheduledSeconds
	switch {
	case over <= 0:
		return 3
	case over <= graceSeconds:
		return 2
	default:
		return 1
	}
}
