// Package telemetry produces batch descriptors standing in for the IoT
// ingestion pipeline. Batch ids advance monotonically so re-runs provision
// new batches instead of replaying old ones.
package telemetry

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/model"
)

// ElectricityPerKgH2 is the assumed electrolysis consumption in kWh per kg.
const ElectricityPerKgH2 = 60

// MockSource synthesizes telemetry batches. Safe for concurrent use.
type MockSource struct {
	next atomic.Uint64
}

// NewMockSource creates a source whose batch ids start at the given number.
func NewMockSource(startID uint64) *MockSource {
	s := &MockSource{}
	s.next.Store(startID)
	return s
}

// NextBatches returns count fresh batch descriptors with energy consumption
// in the 100–1000 kWh range.
func (s *MockSource) NextBatches(count int) []model.Batch {
	batches := make([]model.Batch, count)
	for i := range batches {
		id := s.next.Add(1)
		batches[i] = model.Batch{
			BatchID:   fmt.Sprintf("batch-%d", id),
			BurnedKwh: 100 + rand.Uint64N(900),
		}
	}
	return batches
}

// organizations are the fixture producers reported by the processed view.
var organizations = []struct {
	id         string
	name       string
	burnedKwts uint64
}{
	{"org-001", "Green Energy Co.", 1200},
	{"org-002", "HydroFuture Inc.", 800},
	{"org-003", "Solaris Ltd.", 1500},
}

// ProductionReports returns the per-organization processed telemetry view:
// burned kilowatts converted into available hydrogen at the assumed
// electrolysis rate.
func ProductionReports(now time.Time) []model.ProductionReport {
	reports := make([]model.ProductionReport, len(organizations))
	for i, org := range organizations {
		reports[i] = model.ProductionReport{
			EacID:               fmt.Sprintf("eac-%d", i+1),
			OrganizationID:      org.id,
			OrganizationName:    org.name,
			AvailableHydrogenKg: org.burnedKwts / ElectricityPerKgH2,
			ProductionDate:      now.UTC().Format(time.RFC3339),
			PricePerKg:          uint64(15 + i*2),
		}
	}
	return reports
}
