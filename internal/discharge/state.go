package discharge

import (
	"time"

	"github.com/TheCacophonyProject/discharge-logger/internal/onewire"
)

// Record is one averaged, logged data point.
type Record struct {
	Time        time.Time
	Elapsed     time.Duration
	Voltage     float64 // V
	Current     float64 // mA
	Temperature onewire.Reading
	// HasTemperature is false when the rig has no thermometer, in which case
	// the column is left out of the log.
	HasTemperature bool
}

// accumulator holds running sums for the record being built.
type accumulator struct {
	voltageSum     float64
	currentSum     float64
	temperatureSum float64
	samples        int
	// Only valid temperature readings are summed and counted.
	temperatureSamples int
}

func (a *accumulator) add(voltage, current float64, temp onewire.Reading) {
	a.voltageSum += voltage
	a.currentSum += current
	if temp.Valid {
		a.temperatureSum += temp.Celsius
		a.temperatureSamples++
	}
	a.samples++
}

// record averages the accumulated samples and resets the accumulator.
func (a *accumulator) record() Record {
	n := float64(a.samples)
	r := Record{
		Voltage: a.voltageSum / n,
		Current: a.currentSum / n,
	}
	if a.temperatureSamples > 0 {
		r.Temperature = onewire.Temp(a.temperatureSum / float64(a.temperatureSamples))
	}
	*a = accumulator{}
	return r
}

// RunSummary is worked out once when the run ends.
type RunSummary struct {
	AverageCurrent float64 `yaml:"average-current-ma"`
	TotalHours     float64 `yaml:"total-hours"`
	CapacityMAh    float64 `yaml:"capacity-mah"`
	Records        int     `yaml:"records"`
}

// RunState is everything that changes during a run. It belongs to the loop.
type RunState struct {
	acc accumulator
	// Voltage checked against the end voltage, the start voltage until the
	// first record is made.
	guard float64

	// Tally of per record averaged currents, not raw samples.
	currentTotal float64
	records      int

	start time.Time
}

func newRunState(startVoltage float64, start time.Time) *RunState {
	return &RunState{guard: startVoltage, start: start}
}

// addSample adds a raw sample and returns the finished record once
// samplesPerRecord samples have been added.
func (s *RunState) addSample(voltage, current float64, temp onewire.Reading, samplesPerRecord int) (Record, bool) {
	s.acc.add(voltage, current, temp)
	if s.acc.samples < samplesPerRecord {
		return Record{}, false
	}
	r := s.acc.record()
	s.guard = r.Voltage
	s.currentTotal += r.Current
	s.records++
	return r, true
}

// summarise works out the summary for a run ending at end. A run with no
// records has zero average current and capacity.
func (s *RunState) summarise(end time.Time) RunSummary {
	summary := RunSummary{
		TotalHours: end.Sub(s.start).Hours(),
		Records:    s.records,
	}
	if s.records > 0 {
		summary.AverageCurrent = s.currentTotal / float64(s.records)
	}
	summary.CapacityMAh = summary.AverageCurrent * summary.TotalHours
	return summary
}
