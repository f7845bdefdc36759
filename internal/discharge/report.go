package discharge

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	exitEndVoltage  = "end voltage reached"
	exitInterrupted = "interrupted"

	eventType = "batteryDischargeRun"
)

// addEventFn is swapped out in tests.
var addEventFn = eventclient.AddEvent

// RunReport is written next to the log when a run ends so runs can be
// compared without parsing the log.
type RunReport struct {
	ID           string     `yaml:"id"`
	Version      string     `yaml:"version"`
	Log          string     `yaml:"log"`
	Config       RunConfig  `yaml:"config"`
	Start        time.Time  `yaml:"start"`
	End          time.Time  `yaml:"end"`
	StartVoltage float64    `yaml:"start-voltage"`
	Summary      RunSummary `yaml:"summary"`
	ExitReason   string     `yaml:"exit-reason"`
}

func newRunReport(config RunConfig, logPath string, result Result, runErr error) RunReport {
	return RunReport{
		ID:           uuid.NewString(),
		Version:      version,
		Log:          logPath,
		Config:       config,
		Start:        result.Start,
		End:          result.End,
		StartVoltage: result.StartVoltage,
		Summary:      result.Summary,
		ExitReason:   exitReason(runErr),
	}
}

func exitReason(runErr error) string {
	switch {
	case runErr == nil:
		return exitEndVoltage
	case errors.Is(runErr, context.Canceled):
		return exitInterrupted
	default:
		return runErr.Error()
	}
}

// ReportPath is the report file kept alongside the log at logPath.
func ReportPath(logPath string) string {
	return logPath + ".summary.yaml"
}

// writeReport appends the report as a new YAML document, a log file can
// hold many runs.
func writeReport(path string, r RunReport) error {
	raw, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(append([]byte("---\n"), raw...)); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadReports reads every run report from path.
func ReadReports(path string) ([]RunReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reports := []RunReport{}
	dec := yaml.NewDecoder(file)
	for {
		var r RunReport
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			return reports, nil
		}
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
}

// reportEvent queues the summary with the event-reporter so it is uploaded
// with the rest of the device events.
func reportEvent(r RunReport) error {
	return addEventFn(eventclient.Event{
		Timestamp: r.End,
		Type:      eventType,
		Details: map[string]interface{}{
			"runId":          r.ID,
			"startVoltage":   r.StartVoltage,
			"endVoltage":     r.Config.EndVoltage,
			"averageCurrent": r.Summary.AverageCurrent,
			"totalHours":     r.Summary.TotalHours,
			"capacityMAh":    r.Summary.CapacityMAh,
			"records":        r.Summary.Records,
			"exitReason":     r.ExitReason,
		},
	})
}
