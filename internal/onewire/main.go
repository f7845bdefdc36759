package onewire

import (
	"errors"
	"fmt"
	"os"

	"github.com/TheCacophonyProject/discharge-logger/internal/logging"
	"github.com/alexflint/go-arg"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	DevicesDir string `arg:"--devices-dir" help:"Directory the w1 devices are listed in"`
	logging.LogArgs
}

var defaultArgs = Args{
	DevicesDir: DevicesDir,
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

// SetLogger makes the package log through l, so sensor warnings during a run
// follow the run's log level.
func SetLogger(l *logging.Logger) {
	log = l
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)

	log.Infof("Running version: %s", version)

	sensor, err := Find(args.DevicesDir)
	if err != nil {
		return err
	}
	celsius, err := sensor.ReadCelsius()
	if err != nil {
		return err
	}
	log.Infof("Temperature: %.1f degC (%s)", celsius, sensor)
	return nil
}
