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

// Package ina260 reads bus voltage and current from a TI INA260 power monitor.
package ina260

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
)

const (
	// DefaultAddress is the address with A0 and A1 tied to ground.
	DefaultAddress = 0x40

	currentReg        = 0x01
	busVoltageReg     = 0x02
	manufacturerIDReg = 0xFE

	manufacturerID = 0x5449 // "TI"

	currentLSB = 1.25    // mA
	voltageLSB = 0.00125 // V

	maxTxAttempts   = 3
	txRetryInterval = 20 * time.Millisecond
)

// ErrWrongDevice is returned when the device at the address isn't an INA260.
var ErrWrongDevice = errors.New("device is not an INA260")

// sleepFn is swapped out in tests.
var sleepFn = time.Sleep

// Dev is an INA260 on an I2C connection.
type Dev struct {
	c conn.Conn
}

// New checks the manufacturer id on c and returns the device.
// c is normally an *i2c.Dev or an *i2crequest.Conn.
func New(c conn.Conn) (*Dev, error) {
	d := &Dev{c: c}
	id, err := d.readRegister(manufacturerIDReg)
	if err != nil {
		return nil, fmt.Errorf("failed to read INA260 manufacturer id: %w", err)
	}
	if id != manufacturerID {
		return nil, fmt.Errorf("%w: manufacturer id 0x%04X", ErrWrongDevice, id)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("INA260{%s}", d.c)
}

// Voltage returns the bus voltage in volts.
func (d *Dev) Voltage() (float64, error) {
	raw, err := d.readRegister(busVoltageReg)
	if err != nil {
		return 0, fmt.Errorf("failed to read bus voltage: %w", err)
	}
	return float64(raw) * voltageLSB, nil
}

// Current returns the current through the shunt in milliamps.
// Current flowing from VIN- to VIN+ reads as negative.
func (d *Dev) Current() (float64, error) {
	raw, err := d.readRegister(currentReg)
	if err != nil {
		return 0, fmt.Errorf("failed to read current: %w", err)
	}
	return float64(int16(raw)) * currentLSB, nil
}

// readRegister reads a big endian 16 bit register, retrying a couple of
// times as the bus is shared with the relay HAT.
func (d *Dev) readRegister(reg byte) (uint16, error) {
	read := make([]byte, 2)
	var err error
	for i := 0; i < maxTxAttempts; i++ {
		if err = d.c.Tx([]byte{reg}, read); err == nil {
			return uint16(read[0])<<8 | uint16(read[1]), nil
		}
		if i < maxTxAttempts-1 {
			sleepFn(txRetryInterval)
		}
	}
	return 0, err
}
