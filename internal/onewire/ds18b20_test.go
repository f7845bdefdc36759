package onewire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sigurn/crc8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noSleepFn = func(d time.Duration) {}

// scratchpad formats the 8 scratchpad bytes the way w1-therm prints them,
// with the crc appended.
func scratchpad(data []byte) string {
	data = append(data, crc8.Checksum(data, crcTable))
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}

var goodScratchpad = scratchpad([]byte{0x72, 0x01, 0x4b, 0x46, 0x7f, 0xff, 0x0e, 0x10})

func writeSlave(t *testing.T, path, contents string) {
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func newTestSensor(t *testing.T, contents string) *Sensor {
	sleepFn = noSleepFn
	path := filepath.Join(t.TempDir(), slaveFile)
	writeSlave(t, path, contents)
	return NewSensor(path)
}

func TestGoodReading(t *testing.T) {
	s := newTestSensor(t, fmt.Sprintf("%s : crc=57 YES\n%s t=23125\n", goodScratchpad, goodScratchpad))

	r := s.Read()
	assert.True(t, r.Valid)
	assert.InDelta(t, 23.125, r.Celsius, 1e-9)
	assert.Equal(t, "23.125", r.String())
}

func TestNegativeReading(t *testing.T) {
	s := newTestSensor(t, fmt.Sprintf("%s : crc=57 YES\n%s t=-1250\n", goodScratchpad, goodScratchpad))

	celsius, err := s.ReadCelsius()
	require.NoError(t, err)
	assert.InDelta(t, -1.25, celsius, 1e-9)
}

func TestMalformedBlocksGiveInvalidReading(t *testing.T) {
	blocks := []string{
		"",
		fmt.Sprintf("%s : crc=57 YES\n", goodScratchpad),
		fmt.Sprintf("%s : crc=57 YES\n%s\n", goodScratchpad, goodScratchpad),
		fmt.Sprintf("%s : crc=57 YES\n%s t=hot\n", goodScratchpad, goodScratchpad),
		"not hex at all : crc=00 YES\n00 t=1000\n",
		"72 01 4b 46 7f ff 0e 10 00 : crc=00 YES\n72 01 4b 46 7f ff 0e 10 00 t=23125\n",
	}
	for _, b := range blocks {
		r := newTestSensor(t, b).Read()
		assert.False(t, r.Valid, b)
		assert.Equal(t, "-99", r.String())
	}
}

func TestNotReadyIsBounded(t *testing.T) {
	s := newTestSensor(t, fmt.Sprintf("%s : crc=00 NO\n%s t=85000\n", goodScratchpad, goodScratchpad))

	sleeps := 0
	sleepFn = func(d time.Duration) {
		assert.Equal(t, readyRetryDelay, d)
		sleeps++
	}
	_, err := s.ReadCelsius()
	var notReady *NotReadyError
	require.True(t, errors.As(err, &notReady))
	assert.Equal(t, maxReadyAttempts, notReady.Attempts)
	assert.Equal(t, maxReadyAttempts-1, sleeps)

	assert.False(t, s.Read().Valid)
}

func TestBecomesReady(t *testing.T) {
	s := newTestSensor(t, fmt.Sprintf("%s : crc=00 NO\n%s t=0\n", goodScratchpad, goodScratchpad))

	sleeps := 0
	sleepFn = func(d time.Duration) {
		sleeps++
		if sleeps == 2 {
			writeSlave(t, s.path, fmt.Sprintf("%s : crc=57 YES\n%s t=19500\n", goodScratchpad, goodScratchpad))
		}
	}
	celsius, err := s.ReadCelsius()
	require.NoError(t, err)
	assert.InDelta(t, 19.5, celsius, 1e-9)
	assert.Equal(t, 2, sleeps)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	_, err := Find(dir)
	assert.ErrorIs(t, err, ErrNoDevice)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "w1_bus_master1"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "28-3c01d607d4c2"), 0755))
	s, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "28-3c01d607d4c2", slaveFile), s.String())
}
