package dataset

import (
	"sync"
	"sync/atomic"
	"time"
)

// Latest publishes the newest dataset to concurrent readers. Readers never
// block; producers go through Update one at a time so that a slow run
// cannot overwrite the result of a run that started after it.
type Latest struct {
	current atomic.Pointer[Dataset]
	version atomic.Uint64
	mu      sync.Mutex
}

// NewLatest returns an empty Latest.
func NewLatest() *Latest {
	return &Latest{}
}

// Get returns the published dataset, or nil.
func (l *Latest) Get() *Dataset {
	return l.current.Load()
}

// Version counts publications; zero means nothing was published.
func (l *Latest) Version() uint64 {
	return l.version.Load()
}

// Publish replaces the dataset outside of Update, e.g. at startup.
func (l *Latest) Publish(ds *Dataset) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.publish(ds)
}

func (l *Latest) publish(ds *Dataset) uint64 {
	l.current.Store(ds)
	return l.version.Add(1)
}

// Update runs build while holding the producer lock and publishes its
// result. Nothing is published when build fails.
func (l *Latest) Update(build func() (*Dataset, error)) (*Dataset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ds, err := build()
	if err != nil {
		return nil, err
	}
	l.publish(ds)
	return ds, nil
}

// Age reports how long ago the published dataset was created.
func (l *Latest) Age(now time.Time) (time.Duration, bool) {
	ds := l.current.Load()
	if ds == nil {
		return 0, false
	}
	return now.Sub(ds.CreatedAt), true
}

// AgeSeconds is Age in seconds, or -1 when nothing is published.
func (l *Latest) AgeSeconds() float64 {
	age, ok := l.Age(time.Now())
	if !ok {
		return -1
	}
	return age.Seconds()
}
