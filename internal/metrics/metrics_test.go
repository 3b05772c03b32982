package metrics

import (
	"testing"
	"time"
)

func TestFinalize(t *testing.T) {
	m := &EnterpriseMetrics{DoneCount: 10, Elapsed: 2 * time.Second}
	m.Finalize()

	if m.ElapsedMs != 2000 {
		t.Errorf("Expected ElapsedMs=2000, got %d", m.ElapsedMs)
	}
	if m.MissionsPerSec != 5 {
		t.Errorf("Expected MissionsPerSec=5, got %v", m.MissionsPerSec)
	}

	idle := &EnterpriseMetrics{DoneCount: 3}
	idle.Finalize()
	if idle.MissionsPerSec != 0 {
		t.Errorf("Expected no rate without elapsed time, got %v", idle.MissionsPerSec)
	}
}

func TestProgress(t *testing.T) {
	testCases := []struct {
		name     string
		metrics  EnterpriseMetrics
		expectP  float64
		expectOK bool
	}{
		{name: "half way", metrics: EnterpriseMetrics{ProducedCount: 5, ExpectedCount: 10}, expectP: 0.5, expectOK: true},
		{name: "over produced is capped", metrics: EnterpriseMetrics{ProducedCount: 12, ExpectedCount: 10}, expectP: 1, expectOK: true},
		{name: "nothing expected", metrics: EnterpriseMetrics{ExpectedCount: 0}, expectP: 0, expectOK: true},
		{name: "not computed", metrics: EnterpriseMetrics{ProducedCount: 4, ExpectedCount: -1}, expectP: 0, expectOK: false},
		{name: "not computable", metrics: EnterpriseMetrics{ProducedCount: 4, ExpectedCount: -3}, expectP: 0, expectOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := tc.metrics.Progress()
			if p != tc.expectP || ok != tc.expectOK {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tc.expectP, tc.expectOK, p, ok)
			}
		})
	}
}
