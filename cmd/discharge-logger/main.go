package main

import (
	"fmt"
	"os"

	"github.com/TheCacophonyProject/discharge-logger/internal/discharge"
	"github.com/TheCacophonyProject/discharge-logger/internal/export"
	"github.com/TheCacophonyProject/discharge-logger/internal/logging"
	"github.com/TheCacophonyProject/discharge-logger/internal/onewire"
	"github.com/TheCacophonyProject/discharge-logger/internal/relay"
)

var log *logging.Logger

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	log = logging.NewLogger("info")
	if len(os.Args) < 2 {
		log.Info("Usage: discharge-logger <run|relays|temp|export> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "run":
		err = discharge.Run(args, version)
	case "relays":
		err = relay.Run(args, version)
	case "temp":
		err = onewire.Run(args, version)
	case "export":
		err = export.Run(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
