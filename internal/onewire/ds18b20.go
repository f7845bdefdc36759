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

// Package onewire reads a DS18B20 temperature sensor through the kernel
// w1-therm driver.
package onewire

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sigurn/crc8"
)

const (
	DevicesDir = "/sys/bus/w1/devices"

	// The w1 family code for a DS18B20.
	ds18b20Family = "28"
	slaveFile     = "w1_slave"

	maxReadyAttempts = 25
	readyRetryDelay  = 200 * time.Millisecond

	// SentinelCelsius is how an invalid reading is written to the log, the
	// same value earlier versions of the logger used.
	SentinelCelsius = -99
)

var (
	ErrNoDevice = errors.New("no DS18B20 found on the one-wire bus")
	errBadCRC   = errors.New("bad scratchpad crc")
	errNoTemp   = errors.New("no t= marker in w1 output")
)

var crcTable = crc8.MakeTable(crc8.CRC8_MAXIM)

// sleepFn is swapped out in tests.
var sleepFn = time.Sleep

// NotReadyError is returned when the driver never reported a valid conversion.
type NotReadyError struct {
	Attempts int
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("temperature sensor not ready after %d attempts", e.Attempts)
}

// Reading is a temperature that may not have been read successfully.
type Reading struct {
	Celsius float64
	Valid   bool
}

// Temp returns a valid reading.
func Temp(celsius float64) Reading {
	return Reading{Celsius: celsius, Valid: true}
}

func (r Reading) String() string {
	if !r.Valid {
		return strconv.Itoa(SentinelCelsius)
	}
	return strconv.FormatFloat(r.Celsius, 'f', -1, 64)
}

// Sensor is one DS18B20 on the bus.
type Sensor struct {
	path string
}

// Find returns the first DS18B20 under devicesDir.
func Find(devicesDir string) (*Sensor, error) {
	matches, err := filepath.Glob(filepath.Join(devicesDir, ds18b20Family+"*"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoDevice
	}
	return NewSensor(filepath.Join(matches[0], slaveFile)), nil
}

// NewSensor returns a sensor reading the w1_slave file at path.
func NewSensor(path string) *Sensor {
	return &Sensor{path: path}
}

func (s *Sensor) String() string {
	return s.path
}

// Read never fails, a sensor that can't be read gives an invalid Reading.
// The temperature isn't needed to end a run so it isn't worth stopping for.
func (s *Sensor) Read() Reading {
	celsius, err := s.ReadCelsius()
	if err != nil {
		log.Warnf("Failed to read temperature from %s: %v", s.path, err)
		return Reading{}
	}
	return Temp(celsius)
}

// ReadCelsius waits for the driver to report a valid conversion then parses it.
func (s *Sensor) ReadCelsius() (float64, error) {
	for attempt := 1; ; attempt++ {
		lines, err := s.readRaw()
		if err != nil {
			return 0, err
		}
		if len(lines) > 0 && strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
			return parseTemp(lines)
		}
		if attempt >= maxReadyAttempts {
			return 0, &NotReadyError{Attempts: attempt}
		}
		log.Debugf("Temperature not ready, got %q", lines)
		sleepFn(readyRetryDelay)
	}
}

func (s *Sensor) readRaw() ([]string, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n"), nil
}

// parseTemp parses output like
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseTemp(lines []string) (float64, error) {
	if len(lines) < 2 {
		return 0, fmt.Errorf("expected 2 lines of w1 output, got %d", len(lines))
	}
	if err := checkCRC(lines[0]); err != nil {
		return 0, err
	}
	i := strings.Index(lines[1], "t=")
	if i == -1 {
		return 0, errNoTemp
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, fmt.Errorf("failed to parse temperature: %w", err)
	}
	return float64(milli) / 1000, nil
}

// checkCRC checks the scratchpad bytes printed on the status line against
// their Dallas CRC.
func checkCRC(line string) error {
	raw, _, ok := strings.Cut(line, ":")
	if !ok {
		return fmt.Errorf("unexpected w1 status line %q", line)
	}
	scratchpad, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	if err != nil {
		return fmt.Errorf("failed to parse scratchpad: %w", err)
	}
	if len(scratchpad) != 9 {
		return fmt.Errorf("scratchpad length: %d", len(scratchpad))
	}
	if crc8.Checksum(scratchpad[:8], crcTable) != scratchpad[8] {
		return errBadCRC
	}
	return nil
}
