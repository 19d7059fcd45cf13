// Пакет clock — источник текущего времени для движка хранения.
// В тестах подменяется на Fake.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// Real — системные часы (UTC).
type Real struct{}

// Now возвращает текущее время в UTC.
func (Real) Now() time.Time { return time.Now().UTC() }

// Fake — управляемые часы для тестов.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake создаёт часы, остановленные на moment.
func NewFake(moment time.Time) *Fake {
	return &Fake{now: moment.UTC()}
}

// Now возвращает установленное время.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set устанавливает текущее время.
func (f *Fake) Set(moment time.Time) {
	f.mu.Lock()
	f.now = moment.UTC()
	f.mu.Unlock()
}

// Advance сдвигает время вперёд на d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
