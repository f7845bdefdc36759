/*
discharge-logger - Battery discharge test rig
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package discharge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/discharge-logger/internal/onewire"
)

// loadChannel is the relay switching in the 10 Ohm load, about 800mA from a 2S pack.
const loadChannel = 0

// Sensor reads the battery. Voltage is in volts, current in milliamps.
type Sensor interface {
	Voltage() (float64, error)
	Current() (float64, error)
}

// Thermometer never fails, it returns an invalid reading instead.
type Thermometer interface {
	Read() onewire.Reading
}

// Relays switches the loads.
type Relays interface {
	On(ch int) error
	AllOff() error
}

// RecordWriter is the append only run log.
type RecordWriter interface {
	Started(startVoltage, endVoltage float64) error
	Record(r Record) error
	Summary(s RunSummary) error
}

// Result describes a finished run. Started is false if the run failed
// before the load was switched on, in which case nothing else is set.
type Result struct {
	Started      bool
	StartVoltage float64
	Start        time.Time
	End          time.Time
	Summary      RunSummary
}

// Monitor runs one discharge test.
type Monitor struct {
	config      RunConfig
	sensor      Sensor
	thermometer Thermometer
	relays      Relays
	out         RecordWriter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewMonitor returns a monitor for one run. thermometer may be nil.
func NewMonitor(config RunConfig, sensor Sensor, thermometer Thermometer, relays Relays, out RecordWriter) *Monitor {
	return &Monitor{
		config:      config,
		sensor:      sensor,
		thermometer: thermometer,
		relays:      relays,
		out:         out,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Run switches the load on and logs readings until the battery is at or
// below the end voltage, ctx is cancelled or reading the sensor fails.
// Every relay is off when Run returns, and once the load has been switched
// on the summary is always logged.
func (m *Monitor) Run(ctx context.Context) (result Result, err error) {
	defer func() {
		if offErr := m.relays.AllOff(); offErr != nil {
			log.Errorf("Failed to switch off relays: %v", offErr)
			err = errors.Join(err, offErr)
			return
		}
		log.Debug("All relays off")
	}()

	if err := m.config.Validate(); err != nil {
		return result, fmt.Errorf("invalid run config: %w", err)
	}

	volts, err := m.sensor.Voltage()
	if err != nil {
		return result, fmt.Errorf("failed to read start voltage: %w", err)
	}
	log.Infof("Battery profiling started: Starting at %vV, Ending at %vV", volts, m.config.EndVoltage)
	if err := m.out.Started(volts, m.config.EndVoltage); err != nil {
		return result, err
	}
	if m.thermometer != nil {
		log.Infof("Starting temperature: %s degC", m.thermometer.Read())
	}

	if err := m.relays.On(loadChannel); err != nil {
		return result, err
	}
	state := newRunState(volts, m.now())
	result = Result{
		Started:      true,
		StartVoltage: volts,
		Start:        state.start,
	}

	defer func() {
		result.End = m.now()
		result.Summary = state.summarise(result.End)
		if sumErr := m.out.Summary(result.Summary); sumErr != nil {
			err = errors.Join(err, sumErr)
		}
		log.Infof("Run ended. Average current: %.2f; Total time: %.2f hours; Calculated capacity: %.2f mAH",
			result.Summary.AverageCurrent, result.Summary.TotalHours, result.Summary.CapacityMAh)
	}()

	return result, m.loop(ctx, state)
}

func (m *Monitor) loop(ctx context.Context, state *RunState) error {
	spacing := m.config.sampleSpacing()
	log.Debugf("Taking a sample every %s", spacing)

	for state.guard > m.config.EndVoltage {
		if err := m.sleep(ctx, spacing); err != nil {
			return err
		}

		voltage, err := m.sensor.Voltage()
		if err != nil {
			return fmt.Errorf("failed to read voltage: %w", err)
		}
		current, err := m.sensor.Current()
		if err != nil {
			return fmt.Errorf("failed to read current: %w", err)
		}
		var temp onewire.Reading
		if m.thermometer != nil {
			temp = m.thermometer.Read()
		}
		log.Debugf("Sample: %v V, %v mA, %s degC", voltage, current, temp)

		r, ok := state.addSample(voltage, current, temp, m.config.SamplesPerRecord)
		if !ok {
			continue
		}
		r.Time = m.now()
		r.Elapsed = r.Time.Sub(state.start)
		r.HasTemperature = m.thermometer != nil
		if err := m.out.Record(r); err != nil {
			return err
		}
		logProgress(r)
	}
	return nil
}

func logProgress(r Record) {
	progress := fmt.Sprintf("Time: %.0fs, %.2f V, %.2f mA", r.Elapsed.Seconds(), r.Voltage, r.Current)
	if r.HasTemperature {
		if r.Temperature.Valid {
			progress += fmt.Sprintf(", %.1f degC", r.Temperature.Celsius)
		} else {
			progress += ", no temperature"
		}
	}
	log.Info(progress)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
