// Package diag records human-readable link diagnostics.
//
// Every event is logged through logrus and kept in a bounded history so the
// most recent activity can be shown when the peripheral shuts down. Old
// events are overwritten once the history is full.
package diag

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHistorySize is the number of events kept when no size is given
	DefaultHistorySize uint32 = 64

	// MaxHistorySize guards against accidental misconfiguration
	MaxHistorySize uint32 = 64 * 1024
)

// Event is one recorded diagnostic
type Event struct {
	Time   time.Time
	Level  logrus.Level
	Name   string
	Err    error
	Fields logrus.Fields
}

// String renders the event on one line with sorted fields
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Time.Format("15:04:05.000"), strings.ToUpper(e.Level.String()), e.Name)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " error=%q", e.Err.Error())
	}
	return b.String()
}

// Recorder logs diagnostics and keeps the most recent ones.
// All methods are safe for concurrent use.
type Recorder struct {
	logger      *logrus.Logger
	history     mpmc.RichOverlappedRingBuffer[Event]
	overwritten atomic.Uint64
}

// NewRecorder creates a recorder keeping up to size events
func NewRecorder(logger *logrus.Logger, size uint32) (*Recorder, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if size == 0 {
		size = DefaultHistorySize
	}
	if size > MaxHistorySize {
		return nil, fmt.Errorf("history size %d exceeds maximum %d", size, MaxHistorySize)
	}

	return &Recorder{
		logger:  logger,
		history: mpmc.NewOverlappedRingBuffer[Event](size),
	}, nil
}

// Info records an informational event
func (r *Recorder) Info(event string, fields logrus.Fields) {
	r.logger.WithFields(fields).Info(event)
	r.record(Event{Time: time.Now(), Level: logrus.InfoLevel, Name: event, Fields: fields})
}

// Warn records a non-fatal failure
func (r *Recorder) Warn(event string, err error, fields logrus.Fields) {
	entry := r.logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn(event)
	r.record(Event{Time: time.Now(), Level: logrus.WarnLevel, Name: event, Err: err, Fields: fields})
}

func (r *Recorder) record(e Event) {
	overwrites, err := r.history.EnqueueM(e)
	if err != nil {
		r.logger.WithError(err).Debug("Failed to record diagnostic event")
		return
	}
	if overwrites > 0 {
		r.overwritten.Add(uint64(overwrites))
	}
}

// Drain removes and returns the recorded events, oldest first
func (r *Recorder) Drain() []Event {
	var events []Event
	for !r.history.IsEmpty() {
		e, err := r.history.Dequeue()
		if err != nil {
			break
		}
		events = append(events, e)
	}
	return events
}

// Overwritten returns how many events were dropped because the history was full
func (r *Recorder) Overwritten() uint64 {
	return r.overwritten.Load()
}
