package models

// QueuePosition is the live view of one entry's place in the line.
type QueuePosition struct {
	Position             int  `json:"position"`
	EstimatedWaitMinutes int  `json:"estimated_wait_minutes"`
	TotalInQueue         int  `json:"total_in_queue"`
	IsNext               bool `json:"is_next"`
}

// QueueStats aggregates the state of one service's queue.
type QueueStats struct {
	TotalWaiting       int   `json:"total_waiting"`
	TotalCalled        int   `json:"total_called"`
	TotalServed        int   `json:"total_served"`
	AverageWaitMinutes int   `json:"average_wait_minutes"`
	NextQueueNumber    int64 `json:"next_queue_number"`
}
