package racesim

// Race time bounds in hundredths of a second.
const (
	minTime       = 800
	maxTime       = 2500
	fastestTime   = 100
	maxImprove    = 300
	improveChance = 3 // one in improveChance racers retries each round
)

// Delivery templates as logged by the service.
const (
	templateEntrySuccess = "entry_success"
	templateEntryFailure = "entry_failure"
	templateDethrone     = "dethrone"
)

// Runner configuration constants.
const (
	WorkerChannelMultiplier = 2
	PercentageMultiplier    = 100
)
