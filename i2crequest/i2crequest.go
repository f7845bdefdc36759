// Package i2crequest makes I2C transactions through the org.cacophony.i2c dbus
// service. On devices where that service owns the bus, sensors have to go
// through it instead of opening /dev/i2c-1 directly.
package i2crequest

import (
	"fmt"

	"github.com/godbus/dbus"
	"periph.io/x/conn/v3"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"

	// DefaultTimeout is how long, in milliseconds, the service waits for the bus.
	DefaultTimeout = 1000
)

// txFn is swapped out in tests.
var txFn = dbusTx

// Tx writes `write` to the device at `address` and reads back readLen bytes.
func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	return txFn(address, write, readLen, timeout)
}

func dbusTx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}

	return response, nil
}

// CheckAddress returns true if a device acknowledges at the address.
func CheckAddress(address byte, timeout int) (bool, error) {
	_, err := Tx(address, []byte{0x00}, 1, timeout)
	return err == nil, err
}

// Conn is a periph conn.Conn for one device address that routes every
// transaction through the dbus service.
type Conn struct {
	Address byte
	Timeout int
}

// NewConn returns a Conn for the device at address using DefaultTimeout.
func NewConn(address byte) *Conn {
	return &Conn{Address: address, Timeout: DefaultTimeout}
}

func (c *Conn) String() string {
	return fmt.Sprintf("dbus-i2c(0x%02X)", c.Address)
}

// Tx implements conn.Conn.
func (c *Conn) Tx(w, r []byte) error {
	response, err := Tx(c.Address, w, len(r), c.Timeout)
	if err != nil {
		return err
	}
	if len(response) != len(r) {
		return fmt.Errorf("i2c response from 0x%02X was %d bytes, expected %d", c.Address, len(response), len(r))
	}
	copy(r, response)
	return nil
}

// Duplex implements conn.Conn.
func (c *Conn) Duplex() conn.Duplex {
	return conn.Half
}

var _ conn.Conn = &Conn{}
