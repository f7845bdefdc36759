/*
export - Discharge log to spreadsheet conversion
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

package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/discharge-logger/internal/discharge"
	"github.com/TheCacophonyProject/discharge-logger/internal/onewire"
	"github.com/montanaflynn/stats"
	"github.com/xuri/excelize/v2"
)

const (
	readingsSheet = "Readings"
	summarySheet  = "Summary"
	runsSheet     = "Runs"
)

// Stat is the spread of one quantity over all readings.
type Stat struct {
	Name   string
	Unit   string
	Mean   float64
	Min    float64
	Max    float64
	StdDev float64
}

// ReadingStats works out voltage, current and temperature statistics.
// Temperature is left out when no reading had a valid temperature.
func ReadingStats(readings []Reading) ([]Stat, error) {
	var voltages, currents, temps stats.Float64Data
	for _, r := range readings {
		voltages = append(voltages, r.Voltage)
		currents = append(currents, r.Current)
		if r.Temperature.Valid {
			temps = append(temps, r.Temperature.Celsius)
		}
	}
	if len(voltages) == 0 {
		return nil, nil
	}

	out := []Stat{}
	for _, q := range []struct {
		name, unit string
		data       stats.Float64Data
	}{
		{"Voltage", "V", voltages},
		{"Current", "mA", currents},
		{"Temperature", "degC", temps},
	} {
		if len(q.data) == 0 {
			continue
		}
		s, err := describe(q.data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", q.name, err)
		}
		s.Name, s.Unit = q.name, q.unit
		out = append(out, s)
	}
	return out, nil
}

func describe(data stats.Float64Data) (Stat, error) {
	var s Stat
	var errs [4]error
	s.Mean, errs[0] = stats.Mean(data)
	s.Min, errs[1] = stats.Min(data)
	s.Max, errs[2] = stats.Max(data)
	s.StdDev, errs[3] = stats.StandardDeviation(data)
	return s, errors.Join(errs[:]...)
}

// EstimatedCapacity is the mean current over the readings multiplied by the
// time between the first and last reading, in mAh. It is an estimate for logs
// from runs that never wrote their summary, so readings should be from one run.
func EstimatedCapacity(readings []Reading) float64 {
	if len(readings) < 2 {
		return 0
	}
	currents := stats.Float64Data{}
	for _, r := range readings {
		currents = append(currents, r.Current)
	}
	mean, err := currents.Mean()
	if err != nil {
		return 0
	}
	hours := readings[len(readings)-1].Time.Sub(readings[0].Time).Hours()
	return mean * hours
}

// WriteWorkbook saves the log and any run reports as an xlsx workbook.
func WriteWorkbook(path string, l *Log, reports []discharge.RunReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", readingsSheet); err != nil {
		return err
	}
	if err := writeReadings(f, l.Readings); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	if err := writeSummary(f, l); err != nil {
		return err
	}

	if len(reports) > 0 {
		if _, err := f.NewSheet(runsSheet); err != nil {
			return err
		}
		if err := writeRuns(f, reports); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func writeReadings(f *excelize.File, readings []Reading) error {
	if err := setRow(f, readingsSheet, 1, "Timestamp", "Voltage (V)", "Current (mA)", "Temperature (degC)"); err != nil {
		return err
	}
	for i, r := range readings {
		values := []interface{}{r.Time.Format(discharge.RecordTimeFormat), r.Voltage, r.Current}
		if r.HasTemperature {
			var temp interface{} = onewire.SentinelCelsius
			if r.Temperature.Valid {
				temp = r.Temperature.Celsius
			}
			values = append(values, temp)
		}
		if err := setRow(f, readingsSheet, i+2, values...); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, l *Log) error {
	row := 1
	next := func(values ...interface{}) error {
		err := setRow(f, summarySheet, row, values...)
		row++
		return err
	}

	for _, s := range l.Summary {
		if err := next(s.Label, s.Value, s.Time.Format(discharge.RecordTimeFormat)); err != nil {
			return err
		}
	}
	if len(l.Summary) == 0 {
		if err := next("Estimated capacity", fmt.Sprintf("%.2f mAH", EstimatedCapacity(l.LastRun()))); err != nil {
			return err
		}
	}

	readingStats, err := ReadingStats(l.Readings)
	if err != nil {
		return err
	}
	row++
	if err := next("Quantity", "Mean", "Min", "Max", "Std dev"); err != nil {
		return err
	}
	for _, s := range readingStats {
		if err := next(fmt.Sprintf("%s (%s)", s.Name, s.Unit), s.Mean, s.Min, s.Max, s.StdDev); err != nil {
			return err
		}
	}
	return next("Readings", len(l.Readings))
}

func writeRuns(f *excelize.File, reports []discharge.RunReport) error {
	if err := setRow(f, runsSheet, 1, "Run", "Start", "End", "Start voltage (V)", "End voltage (V)",
		"Average current (mA)", "Total time (hours)", "Capacity (mAH)", "Exit reason"); err != nil {
		return err
	}
	for i, r := range reports {
		err := setRow(f, runsSheet, i+2,
			r.ID,
			r.Start.Format(time.DateTime),
			r.End.Format(time.DateTime),
			r.StartVoltage,
			r.Config.EndVoltage,
			r.Summary.AverageCurrent,
			r.Summary.TotalHours,
			r.Summary.CapacityMAh,
			r.ExitReason,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
