/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package audit keeps a bounded trail of registry mutations and rejected
// requests, and mirrors every event to the log.
package audit

import (
	"io"
	"sync"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"

	"github.com/srediag/shm-arbiter/api"
	iaudit "github.com/srediag/shm-arbiter/internal/audit"
	"github.com/srediag/shm-arbiter/internal/logger"
)

// DefaultCapacity is the trail length used when none is given.
const DefaultCapacity = 1024

// Event is one recorded audit entry.
type Event struct {
	Time    time.Time
	Name    string
	Details map[string]interface{}
}

// Logger is an api.Audit that retains the most recent events. Once the trail
// is full the oldest event is dropped for every new one.
type Logger struct {
	mu       sync.Mutex
	q        *queuepkg.Queue
	capacity int64
	logger   *logger.Logger
	now      func() time.Time
}

var _ api.Audit = (*Logger)(nil)

// NewLogger returns a trail holding at most capacity events. Events are also
// written at info level to out; a nil out disables that.
func NewLogger(capacity int, out io.Writer) *Logger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if out == nil {
		out = io.Discard
	}
	return &Logger{
		q:        queuepkg.New(int64(capacity)),
		capacity: int64(capacity),
		logger:   logger.New("audit", out),
		now:      time.Now,
	}
}

// LogEvent implements api.Audit.
func (l *Logger) LogEvent(event string, details map[string]interface{}) error {
	if err := iaudit.CheckEvent(event); err != nil {
		return err
	}
	e := Event{Time: l.now(), Name: event, Details: copyDetails(details)}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.q.Put(e); err != nil {
		return err
	}
	for l.q.Len() > l.capacity {
		// Get blocks on an empty queue, Len guards it
		if _, err := l.q.Get(1); err != nil {
			return err
		}
	}
	l.logger.Infof("%s", iaudit.FormatEvent(event, details))
	return nil
}

// Len returns the number of retained events.
func (l *Logger) Len() int {
	return int(l.q.Len())
}

// Drain removes and returns every retained event, oldest first.
func (l *Logger) Drain() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.q.Len()
	if n == 0 {
		return nil
	}
	items, err := l.q.Get(n)
	if err != nil {
		return nil
	}
	events := make([]Event, 0, len(items))
	for _, it := range items {
		if e, ok := it.(Event); ok {
			events = append(events, e)
		}
	}
	return events
}

// Close disposes the trail. Later LogEvent calls fail.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.q.Dispose()
}

func copyDetails(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
