package racesim

import "time"

// Config holds configuration for a simulated race
type Config struct {
	BaseURL     string        // Base URL of the service
	Racers      int           // Number of racers to register
	Rounds      int           // Improvement rounds after registration
	TopN        int           // Podium size the service was configured with
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	Settle      time.Duration // Wait for the notification pipeline to drain
	PhonePrefix string        // Country prefix for generated phones, e.g. "+27"
	LogFile     string        // Log file for simulator output
	Verbose     bool          // Enable verbose logging
}

// Racer is one generated participant.
type Racer struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Phone   string `json:"phone"`
	Time    string `json:"time"`
	best    int64
}

// Entry represents a leaderboard entry
type Entry struct {
	Rank     int    `json:"rank"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Score    int64  `json:"score"`
	Time     string `json:"time"`
	Attempts int    `json:"attempts"`
}

// Delivery is the subset of a delivery record the simulator checks.
type Delivery struct {
	ID           string `json:"id"`
	TransitionID string `json:"transition_id"`
	To           string `json:"to"`
	Template     string `json:"template"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// submitResponse is the reply to a time submission.
type submitResponse struct {
	Participant Entry `json:"participant"`
	Improved    bool  `json:"improved"`
}

// Stats holds simulation statistics
type Stats struct {
	Registered         int
	RegisterFailed     int
	Submissions        int
	Improvements       int
	SubmitFailed       int
	LeaderboardEntries int
	ExpectedDethrones  int            // registrations that displaced a podium member
	Deliveries         map[string]int // by template
	FailedDeliveries   int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
