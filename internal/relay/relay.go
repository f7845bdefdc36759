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

package relay

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Channels is the number of relays on the HAT.
const Channels = 4

// PinNames are the GPIO lines driving relays 1 to 4.
var PinNames = [Channels]string{"GPIO6", "GPIO13", "GPIO19", "GPIO26"}

// Pin is the part of gpio.PinIO the board uses.
type Pin interface {
	Name() string
	Out(l gpio.Level) error
}

// Board switches the load resistors. Relays are active high.
type Board struct {
	pins [Channels]Pin
}

// Open initialises the host drivers and returns the board with every relay off.
func Open() (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %v", err)
	}
	var pins [Channels]Pin
	for i, name := range PinNames {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("failed to find relay pin '%s'", name)
		}
		pins[i] = p
	}
	return NewBoard(pins)
}

// NewBoard drives every pin low and returns the board.
func NewBoard(pins [Channels]Pin) (*Board, error) {
	b := &Board{pins: pins}
	if err := b.AllOff(); err != nil {
		return nil, err
	}
	return b, nil
}

// On closes the relay on channel ch (0 based).
func (b *Board) On(ch int) error {
	return b.set(ch, gpio.High)
}

// Off opens the relay on channel ch (0 based).
func (b *Board) Off(ch int) error {
	return b.set(ch, gpio.Low)
}

// AllOff drives every channel low, including ones that were never switched on.
// It keeps going past a failing channel so one bad pin can't leave a load connected.
func (b *Board) AllOff() error {
	var errs []error
	for ch := range b.pins {
		if err := b.set(ch, gpio.Low); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Board) set(ch int, l gpio.Level) error {
	if ch < 0 || ch >= Channels {
		return fmt.Errorf("invalid relay channel %d", ch)
	}
	p := b.pins[ch]
	log.Debugf("Setting relay %d (%s) %s", ch+1, p.Name(), l)
	if err := p.Out(l); err != nil {
		return fmt.Errorf("failed to set relay %d (%s) %s: %w", ch+1, p.Name(), l, err)
	}
	return nil
}
