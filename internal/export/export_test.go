package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheCacophonyProject/discharge-logger/internal/discharge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testLog = `19-Oct-26 09:00:00, Battery profiling started: Starting at 8.32V, Ending at 5.8V
19-Oct-26 09:00:16, 8.3,800,21.5
19-Oct-26 09:00:32, 8.2,810,-99

not a log line
19-Oct-26 09:00:48, 8.1,790,22.5
19-Oct-26 09:00:64, 8.0,790,22.5
19-Oct-26 09:01:04, "Total time","0.02 hours"
19-Oct-26 09:01:04, "Capacity","13.33 mAH"
`

func TestParseLog(t *testing.T) {
	l, err := ParseLog(strings.NewReader(testLog))
	require.NoError(t, err)

	assert.Len(t, l.Starts, 1)
	assert.Equal(t, 2, l.Skipped)
	require.Len(t, l.Readings, 3)

	r := l.Readings[0]
	assert.Equal(t, time.Date(2026, 10, 19, 9, 0, 16, 0, time.Local), r.Time)
	assert.Equal(t, 8.3, r.Voltage)
	assert.Equal(t, 800.0, r.Current)
	assert.True(t, r.HasTemperature)
	assert.True(t, r.Temperature.Valid)
	assert.Equal(t, 21.5, r.Temperature.Celsius)

	assert.True(t, l.Readings[1].HasTemperature)
	assert.False(t, l.Readings[1].Temperature.Valid)

	require.Len(t, l.Summary, 2)
	assert.Equal(t, SummaryLine{Time: time.Date(2026, 10, 19, 9, 1, 4, 0, time.Local), Label: "Total time", Value: "0.02 hours"}, l.Summary[0])
	assert.Equal(t, "Capacity", l.Summary[1].Label)
	assert.Equal(t, "13.33 mAH", l.Summary[1].Value)
}

func TestParseLogWithoutTemperature(t *testing.T) {
	l, err := ParseLog(strings.NewReader("19-Oct-26 09:00:16, 5.95,801.25\n"))
	require.NoError(t, err)
	require.Len(t, l.Readings, 1)
	assert.False(t, l.Readings[0].HasTemperature)
	assert.Equal(t, 801.25, l.Readings[0].Current)
}

func TestReadingStats(t *testing.T) {
	l, err := ParseLog(strings.NewReader(testLog))
	require.NoError(t, err)

	s, err := ReadingStats(l.Readings)
	require.NoError(t, err)
	require.Len(t, s, 3)

	assert.Equal(t, "Voltage", s[0].Name)
	assert.InDelta(t, 8.2, s[0].Mean, 1e-9)
	assert.Equal(t, 8.1, s[0].Min)
	assert.Equal(t, 8.3, s[0].Max)

	assert.Equal(t, "Current", s[1].Name)
	assert.InDelta(t, 800, s[1].Mean, 1e-9)

	// The -99 reading is not a temperature.
	assert.Equal(t, "Temperature", s[2].Name)
	assert.InDelta(t, 22, s[2].Mean, 1e-9)
	assert.Equal(t, 21.5, s[2].Min)

	none, err := ReadingStats(nil)
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestEstimatedCapacity(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)
	readings := []Reading{
		{Time: start, Current: 810},
		{Time: start.Add(time.Hour), Current: 800},
		{Time: start.Add(2 * time.Hour), Current: 790},
	}
	assert.InDelta(t, 1600, EstimatedCapacity(readings), 1e-9)
	assert.Equal(t, 0.0, EstimatedCapacity(readings[:1]))
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, discharge.DefaultLogFile)
	require.NoError(t, os.WriteFile(logPath, []byte(testLog), 0644))
	report := `---
id: 2b0d6c1e-4a52-4f83-9c7e-1d1a5b6f0c11
log: BattLog.txt
config:
  end-voltage: 5.8
  sample-interval: 15s
  samples-per-record: 8
start: 2026-10-19T09:00:00Z
end: 2026-10-19T10:00:00Z
start-voltage: 8.32
summary:
  average-current-ma: 800
  total-hours: 1
  capacity-mah: 800
  records: 3
exit-reason: end voltage reached
`
	require.NoError(t, os.WriteFile(discharge.ReportPath(logPath), []byte(report), 0644))

	output := workbookPath(logPath)
	assert.Equal(t, filepath.Join(dir, "BattLog.xlsx"), output)
	require.NoError(t, Export(logPath, output))

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{readingsSheet, summarySheet, runsSheet}, f.GetSheetList())

	cell := func(sheet, name string) string {
		v, err := f.GetCellValue(sheet, name)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Timestamp", cell(readingsSheet, "A1"))
	assert.Equal(t, "19-Oct-26 09:00:16", cell(readingsSheet, "A2"))
	assert.Equal(t, "8.3", cell(readingsSheet, "B2"))
	assert.Equal(t, "800", cell(readingsSheet, "C2"))
	assert.Equal(t, "-99", cell(readingsSheet, "D3"))
	assert.Equal(t, "8.1", cell(readingsSheet, "B4"))

	assert.Equal(t, "Total time", cell(summarySheet, "A1"))
	assert.Equal(t, "0.02 hours", cell(summarySheet, "B1"))
	assert.Equal(t, "Capacity", cell(summarySheet, "A2"))
	assert.Equal(t, "Quantity", cell(summarySheet, "A4"))
	assert.Equal(t, "Voltage (V)", cell(summarySheet, "A5"))

	assert.Equal(t, "2b0d6c1e-4a52-4f83-9c7e-1d1a5b6f0c11", cell(runsSheet, "A2"))
	assert.Equal(t, "end voltage reached", cell(runsSheet, "I2"))
}

func TestExportWithoutReports(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.txt")
	require.NoError(t, os.WriteFile(logPath, []byte("19-Oct-26 09:00:16, 5.95,801.25\n"), 0644))

	output := filepath.Join(dir, "out.xlsx")
	require.NoError(t, Export(logPath, output))

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{readingsSheet, summarySheet}, f.GetSheetList())

	v, err := f.GetCellValue(summarySheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Estimated capacity", v)
}

func TestEstimateUsesLastRun(t *testing.T) {
	twoRuns := `19-Oct-26 08:00:00, Battery profiling started: Starting at 8.32V, Ending at 5.8V
19-Oct-26 08:00:16, 8.3,400
19-Oct-26 08:30:16, 8.1,400
19-Oct-26 09:00:00, Battery profiling started: Starting at 8.3V, Ending at 5.8V
19-Oct-26 09:00:00, 8.3,810
19-Oct-26 10:00:00, 8.2,800
19-Oct-26 11:00:00, 8.1,790
`
	l, err := ParseLog(strings.NewReader(twoRuns))
	require.NoError(t, err)
	require.Len(t, l.Starts, 2)
	require.Len(t, l.Readings, 5)

	last := l.LastRun()
	require.Len(t, last, 3)
	assert.Equal(t, 810.0, last[0].Current)
	assert.InDelta(t, 1600, EstimatedCapacity(last), 1e-9)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "runs.txt")
	require.NoError(t, os.WriteFile(logPath, []byte(twoRuns), 0644))
	output := filepath.Join(dir, "runs.xlsx")
	require.NoError(t, Export(logPath, output))

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "1600.00 mAH", v)
}
