package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheCacophonyProject/discharge-logger/internal/logging"
	"github.com/alexflint/go-arg"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	On int `arg:"--on" help:"Switch this relay (1-4) on until interrupted, then switch every relay off. For checking wiring."`
	logging.LogArgs
}

var defaultArgs = Args{}

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

	log.Infof("Running version: %s", version)

	// Open leaves every relay off.
	board, err := Open()
	if err != nil {
		return err
	}
	if args.On == 0 {
		log.Info("All relays off")
		return nil
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	return hold(ctx, board, args.On-1)
}

// hold switches relay ch on until ctx is done, then switches every relay off.
func hold(ctx context.Context, b *Board, ch int) error {
	if err := b.On(ch); err != nil {
		return errors.Join(err, b.AllOff())
	}
	log.Infof("Relay %d on, interrupt to switch it off", ch+1)
	<-ctx.Done()
	log.Info("Switching all relays off")
	return b.AllOff()
}

// SetLogger makes the package log through l.
func SetLogger(l *logging.Logger) {
	log = l
}
