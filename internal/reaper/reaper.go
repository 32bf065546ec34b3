// Package reaper periodically deletes outbox events that fell below the
// retention horizon. Subscribers left behind the horizon simply skip to
// the first surviving revision on their next drain; the consumer
// contract is to re-bootstrap from the aggregate endpoint in that case.
package reaper

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Store is the slice of the aggregator the reaper needs.
type Store interface {
	CurrentRevision() (uint64, error)
	DeleteEventsBelow(cutoff uint64) (int64, error)
}

type Reaper struct {
	store     Store
	interval  time.Duration // Time between reap passes
	retention uint64        // Number of most recent revisions kept replayable
	isRunning bool
	stopCh    chan struct{}
}

func New(store Store, interval time.Duration, retention uint64) *Reaper {
	return &Reaper{
		store:     store,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

func (r *Reaper) Start() {
	if r.isRunning {
		logrus.Warn("Reaper is already running")
		return
	}
	r.isRunning = true
	logrus.WithFields(logrus.Fields{"interval": r.interval, "retention": r.retention}).Info("Starting event reaper")
	go r.processLoop()
}

func (r *Reaper) Stop() {
	if !r.isRunning {
		return
	}
	r.isRunning = false
	close(r.stopCh)
}

func (r *Reaper) processLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.ReapOnce(); err != nil {
				// Errors never affect the live system; try again next tick.
				logrus.WithError(err).Error("Reap pass failed")
			}
		case <-r.stopCh:
			logrus.Info("Stopping event reaper")
			return
		}
	}
}

// ReapOnce deletes all events older than the retention horizon,
// cutoff = revision - retention + 1. Events at or above the cutoff stay
// replayable.
func (r *Reaper) ReapOnce() error {
	revision, err := r.store.CurrentRevision()
	if err != nil {
		return err
	}
	if revision <= r.retention {
		return nil
	}
	cutoff := revision - r.retention + 1
	deleted, err := r.store.DeleteEventsBelow(cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logrus.WithFields(logrus.Fields{"cutoff": cutoff, "deleted": deleted}).Info("Reaped events")
	}
	return nil
}
