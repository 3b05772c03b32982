package metrics

import "time"

// EnterpriseMetrics is a point-in-time report of a running or closed-down
// enterprise.
type EnterpriseMetrics struct {
	Name             string        `json:"name"`
	Admission        string        `json:"admission"`
	WishedWorkers    int           `json:"wished_workers"`
	ActiveWorkers    int           `json:"active_workers"`
	DismissedWorkers int           `json:"dismissed_workers"`
	HiredWorkers     int           `json:"hired_workers"`
	DoneCount        int64         `json:"done_count"`
	ProducedCount    int64         `json:"produced_count"`
	BufferedMissions int           `json:"buffered_missions"`
	ExpectedCount    int           `json:"expected_count"`
	Elapsed          time.Duration `json:"-"`
	ElapsedMs        int64         `json:"elapsed_ms"`
	MissionsPerSec   float64       `json:"missions_per_sec"`
	ClosedDown       bool          `json:"closed_down"`
	Exceptions       []string      `json:"exceptions,omitempty"`
}

// Compute derived fields.
func (m *EnterpriseMetrics) Finalize() {
	m.ElapsedMs = m.Elapsed.Milliseconds()
	if m.Elapsed > 0 {
		m.MissionsPerSec = float64(m.DoneCount) / m.Elapsed.Seconds()
	} else {
		m.MissionsPerSec = 0
	}
}

// Progress returns the fraction of expected results already produced, and
// false when no expected count is known.
func (m *EnterpriseMetrics) Progress() (float64, bool) {
	if m.ExpectedCount <= 0 {
		return 0, m.ExpectedCount == 0
	}
	p := float64(m.ProducedCount) / float64(m.ExpectedCount)
	if p > 1 {
		p = 1
	}
	return p, true
}
