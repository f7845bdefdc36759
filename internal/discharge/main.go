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
	"os"
	"os/signal"
	"syscall"

	"github.com/TheCacophonyProject/discharge-logger/i2crequest"
	"github.com/TheCacophonyProject/discharge-logger/internal/ina260"
	"github.com/TheCacophonyProject/discharge-logger/internal/logging"
	"github.com/TheCacophonyProject/discharge-logger/internal/onewire"
	"github.com/TheCacophonyProject/discharge-logger/internal/relay"
	"github.com/alexflint/go-arg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

// stopSignals end a run cleanly. SIGHUP is sent when the ssh session the run
// was started from drops.
var stopSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

var errNoSensor = errors.New("no INA260 found through the i2c service")

// checkAddressFn is swapped out in tests.
var checkAddressFn = i2crequest.CheckAddress

type Args struct {
	ConfigDir   string `arg:"-c,--config" help:"Config folder to read the discharge section from, defaults are used when not set"`
	LogFile     string `arg:"--log-file" help:"File the readings are appended to"`
	I2CViaDBus  bool   `arg:"--i2c-via-dbus" help:"Talk to the INA260 through the org.cacophony.i2c service instead of opening the I2C bus"`
	NoTemp      bool   `arg:"--no-temp" help:"Don't read the one-wire temperature sensor"`
	ReportEvent bool   `arg:"--report-event" help:"Queue an event with the run summary for the event-reporter to upload"`
	logging.LogArgs
}

var defaultArgs = Args{
	LogFile: DefaultLogFile,
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)
	onewire.SetLogger(log)
	relay.SetLogger(log)

	log.Infof("Running version: %s", version)

	ctx, stop := signalContext(context.Background())
	defer stop()

	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	log.Infof("End voltage: %vV, sample interval: %s, samples per record: %d",
		conf.EndVoltage, conf.SampleInterval, conf.SamplesPerRecord)

	log.Debug("Opening relay board")
	board, err := relay.Open()
	if err != nil {
		return err
	}

	log.Debug("Connecting to INA260")
	sensor, err := openSensor(args.I2CViaDBus)
	if err != nil {
		return err
	}

	var thermometer Thermometer
	if args.NoTemp {
		log.Info("Not reading temperature")
	} else if t, err := onewire.Find(onewire.DevicesDir); err != nil {
		log.Warnf("Running without temperature: %v", err)
	} else {
		thermometer = t
	}

	out, err := OpenRecordLog(args.LogFile)
	if err != nil {
		return err
	}
	defer out.Close()

	result, runErr := NewMonitor(conf, sensor, thermometer, board, out).Run(ctx)
	if result.Started {
		report := newRunReport(conf, args.LogFile, result, runErr)
		if err := writeReport(ReportPath(args.LogFile), report); err != nil {
			log.Errorf("Failed to write run report: %v", err)
		}
		if args.ReportEvent {
			if err := reportEvent(report); err != nil {
				log.Errorf("Failed to report run event: %v", err)
			}
		}
	}

	if errors.Is(runErr, context.Canceled) {
		log.Info("Run interrupted")
		return nil
	}
	return runErr
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, stopSignals...)
}

func openSensor(viaDBus bool) (*ina260.Dev, error) {
	if viaDBus {
		return openDBusSensor()
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %v", err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, err
	}
	return ina260.New(&i2c.Dev{Bus: bus, Addr: ina260.DefaultAddress})
}

func openDBusSensor() (*ina260.Dev, error) {
	if ok, err := checkAddressFn(ina260.DefaultAddress, i2crequest.DefaultTimeout); !ok {
		return nil, fmt.Errorf("%w at 0x%02X: %v", errNoSensor, ina260.DefaultAddress, err)
	}
	return ina260.New(i2crequest.NewConn(ina260.DefaultAddress))
}
