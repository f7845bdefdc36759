package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/TheCacophonyProject/discharge-logger/internal/discharge"
	"github.com/TheCacophonyProject/discharge-logger/internal/onewire"
)

const startPrefix = "Battery profiling started:"

// Reading is one status line from a discharge log.
type Reading struct {
	Time           time.Time
	Voltage        float64
	Current        float64
	Temperature    onewire.Reading
	HasTemperature bool
}

// SummaryLine is a quoted "label","value" line written when a run ends.
type SummaryLine struct {
	Time  time.Time
	Label string
	Value string
}

// Log is everything read back from a discharge log. A log file that has
// been appended to by several runs has several start times.
type Log struct {
	Starts   []time.Time
	Readings []Reading
	Summary  []SummaryLine
	Skipped  int

	// Index into Readings of the first reading after the last start line.
	lastRunStart int
}

// LastRun is the readings logged since the last start line.
func (l *Log) LastRun() []Reading {
	return l.Readings[l.lastRunStart:]
}

// ParseLog reads a discharge log. Lines that can't be parsed are counted
// and skipped.
func ParseLog(r io.Reader) (*Log, error) {
	l := &Log{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := l.parseLine(line); err != nil {
			log.Debugf("Skipping line %d: %v", lineNum, err)
			l.Skipped++
		}
	}
	return l, scanner.Err()
}

func (l *Log) parseLine(line string) error {
	ts, msg, ok := strings.Cut(line, ", ")
	if !ok {
		return fmt.Errorf("no timestamp in %q", line)
	}
	t, err := time.ParseInLocation(discharge.RecordTimeFormat, ts, time.Local)
	if err != nil {
		return err
	}
	if strings.HasPrefix(msg, startPrefix) {
		l.Starts = append(l.Starts, t)
		l.lastRunStart = len(l.Readings)
		return nil
	}

	fields, err := csv.NewReader(strings.NewReader(msg)).Read()
	if err != nil {
		return err
	}
	if len(fields) == 2 && strings.HasPrefix(msg, `"`) {
		l.Summary = append(l.Summary, SummaryLine{Time: t, Label: fields[0], Value: fields[1]})
		return nil
	}
	if len(fields) != 2 && len(fields) != 3 {
		return fmt.Errorf("expected 2 or 3 fields, got %d", len(fields))
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		values[i], err = strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
	}
	r := Reading{Time: t, Voltage: values[0], Current: values[1]}
	if len(values) == 3 {
		r.HasTemperature = true
		if values[2] != onewire.SentinelCelsius {
			r.Temperature = onewire.Temp(values[2])
		}
	}
	l.Readings = append(l.Readings, r)
	return nil
}
