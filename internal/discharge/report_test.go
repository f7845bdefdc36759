package discharge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() Result {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	return Result{
		Started:      true,
		StartVoltage: 8.3,
		Start:        start,
		End:          start.Add(3 * time.Hour),
		Summary:      RunSummary{AverageCurrent: 800, TotalHours: 3, CapacityMAh: 2400, Records: 490},
	}
}

func TestExitReason(t *testing.T) {
	assert.Equal(t, exitEndVoltage, exitReason(nil))
	assert.Equal(t, exitInterrupted, exitReason(fmt.Errorf("sleeping: %w", context.Canceled)))
	assert.Equal(t, "failed to read voltage: nack", exitReason(errors.New("failed to read voltage: nack")))
}

func TestReportsAppend(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), DefaultLogFile)
	path := ReportPath(logPath)

	first := newRunReport(DefaultRunConfig(), logPath, testResult(), nil)
	second := newRunReport(DefaultRunConfig(), logPath, testResult(), context.Canceled)
	require.NoError(t, writeReport(path, first))
	require.NoError(t, writeReport(path, second))

	reports, err := ReadReports(path)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.NotEqual(t, reports[0].ID, reports[1].ID)
	assert.Equal(t, DefaultRunConfig(), reports[0].Config)
	assert.Equal(t, testResult().Summary, reports[0].Summary)
	assert.True(t, testResult().Start.Equal(reports[0].Start))
	assert.Equal(t, exitEndVoltage, reports[0].ExitReason)
	assert.Equal(t, exitInterrupted, reports[1].ExitReason)
}

func TestReportEvent(t *testing.T) {
	var events []eventclient.Event
	addEventFn = func(e eventclient.Event) error {
		events = append(events, e)
		return nil
	}
	t.Cleanup(func() { addEventFn = eventclient.AddEvent })

	report := newRunReport(DefaultRunConfig(), DefaultLogFile, testResult(), nil)
	require.NoError(t, reportEvent(report))

	require.Len(t, events, 1)
	assert.Equal(t, eventType, events[0].Type)
	assert.Equal(t, report.End, events[0].Timestamp)
	assert.Equal(t, 2400.0, events[0].Details["capacityMAh"])
	assert.Equal(t, report.ID, events[0].Details["runId"])
}
