package queue

import (
	"math"

	"turnero/internal/models"
)

// Blend weights between the external occupancy signal and the
// queue-length model.
const (
	signalWeight = 0.7
	queueWeight  = 0.3
)

// Estimate computes the wait in minutes for a queue of the given length.
// signalMinutes is the external predictive signal; nil means unavailable,
// in which case the plain queue-length model is used. The result never
// goes below models.MinWaitMinutes.
func Estimate(queueLength int, signalMinutes *float64, avgServiceMinutes int) int {
	if queueLength < 0 {
		queueLength = 0
	}
	if avgServiceMinutes <= 0 {
		avgServiceMinutes = models.DefaultAvgServiceMinutes
	}

	queueBased := float64(queueLength * avgServiceMinutes)

	var estimate float64
	if signalMinutes == nil {
		estimate = queueBased
	} else {
		estimate = math.Round(*signalMinutes*signalWeight + queueBased*queueWeight)
	}

	minutes := int(estimate)
	if minutes < models.MinWaitMinutes {
		minutes = models.MinWaitMinutes
	}
	return minutes
}
