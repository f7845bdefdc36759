package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheCacophonyProject/discharge-logger/internal/discharge"
	"github.com/TheCacophonyProject/discharge-logger/internal/logging"
	"github.com/alexflint/go-arg"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	LogFile string `arg:"positional" help:"Discharge log to export"`
	Output  string `arg:"-o,--output" help:"Workbook to write, defaults to the log file name with .xlsx"`
	logging.LogArgs
}

var defaultArgs = Args{
	LogFile: discharge.DefaultLogFile,
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

	log.Infof("Running version: %s", version)

	output := args.Output
	if output == "" {
		output = workbookPath(args.LogFile)
	}
	return Export(args.LogFile, output)
}

// Export writes the log at logPath, and the run reports kept next to it, to
// a workbook at output.
func Export(logPath, output string) error {
	file, err := os.Open(logPath)
	if err != nil {
		return err
	}
	defer file.Close()

	l, err := ParseLog(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", logPath, err)
	}
	if l.Skipped > 0 {
		log.Warnf("Skipped %d lines that could not be read", l.Skipped)
	}
	log.Infof("Read %d readings from %d runs", len(l.Readings), len(l.Starts))

	reports, err := discharge.ReadReports(discharge.ReportPath(logPath))
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("No run reports found")
	} else if err != nil {
		log.Warnf("Failed to read run reports: %v", err)
	}

	if err := WriteWorkbook(output, l, reports); err != nil {
		return err
	}
	log.Infof("Saved workbook to %s", output)
	return nil
}

func workbookPath(logPath string) string {
	return strings.TrimSuffix(logPath, filepath.Ext(logPath)) + ".xlsx"
}
