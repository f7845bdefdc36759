package discharge

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/TheCacophonyProject/discharge-logger/internal/logging"
	"github.com/sirupsen/logrus"
)

// RecordTimeFormat is the timestamp at the start of every log line.
const RecordTimeFormat = "02-Jan-06 15:04:05"

// DefaultLogFile is where readings go unless --log-file is given.
const DefaultLogFile = "BattLog.txt"

type recordFormatter struct{}

func (f *recordFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(entry.Time.Format(RecordTimeFormat) + ", " + entry.Message + "\n"), nil
}

// errWriter remembers the first write error, logrus only prints them.
type errWriter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

func (w *errWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.mu.Lock()
	if err != nil && w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
	return n, err
}

func (w *errWriter) takeErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.err
	w.err = nil
	return err
}

// RecordLog is the run log meant for importing into a spreadsheet. Lines
// are only ever appended. Status lines are "<time>, <V>,<mA>[,<degC>]" and
// the run finishes with "Total time" and "Capacity" lines.
type RecordLog struct {
	log    *logging.Logger
	w      *errWriter
	closer io.Closer
}

// OpenRecordLog opens path for appending, creating it if needed.
func OpenRecordLog(path string) (*RecordLog, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	l := NewRecordLog(file)
	l.closer = file
	return l, nil
}

// NewRecordLog writes the log to w.
func NewRecordLog(w io.Writer) *RecordLog {
	ew := &errWriter{w: w}
	l := logrus.New()
	l.SetOutput(ew)
	l.SetFormatter(new(recordFormatter))
	l.SetLevel(logrus.InfoLevel)
	return &RecordLog{log: l, w: ew}
}

func (l *RecordLog) Started(startVoltage, endVoltage float64) error {
	l.log.Infof("Battery profiling started: Starting at %vV, Ending at %vV", startVoltage, endVoltage)
	return l.w.takeErr()
}

func (l *RecordLog) Record(r Record) error {
	l.log.WithTime(r.Time).Info(formatRecord(r))
	return l.w.takeErr()
}

func (l *RecordLog) Summary(s RunSummary) error {
	l.log.Infof(`"Total time","%.2f hours"`, s.TotalHours)
	l.log.Infof(`"Capacity","%.2f mAH"`, s.CapacityMAh)
	return l.w.takeErr()
}

func (l *RecordLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func formatRecord(r Record) string {
	line := fmt.Sprintf("%s,%s", formatFloat(r.Voltage), formatFloat(r.Current))
	if r.HasTemperature {
		line += "," + r.Temperature.String()
	}
	return line
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
