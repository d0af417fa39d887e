package models

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusServed    = "served"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

const (
	NotifyJoined    = "joined"
	NotifyCalled    = "called"
	NotifyServed    = "served"
	NotifyCancelled = "cancelled"
	NotifyReminder  = "reminder"
)

const (
	// DefaultAvgServiceMinutes per customer when a service defines none
	DefaultAvgServiceMinutes = 15

	// MinWaitMinutes floor for every wait estimate
	MinWaitMinutes = 5

	// PredictorTimeoutSeconds bound on the external prediction fetch
	PredictorTimeoutSeconds = 5

	// ReminderPositions how many customers at the head of the line get reminders
	ReminderPositions = 2

	// DefaultReminderIntervalSeconds between reminder sweeps
	DefaultReminderIntervalSeconds = 60

	// DefaultPositionTTL lifetime of a cached position in seconds
	DefaultPositionTTL = 10 * 60

	// DefaultMaxCapacity for services that do not configure one
	DefaultMaxCapacity = 50
)
