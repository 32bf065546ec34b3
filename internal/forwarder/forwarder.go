// Package forwarder optionally republishes outbox events to Kafka. It
// behaves like any other broker subscriber: it keeps a cursor, drains
// both event tables from the store on every wake and never buffers. A
// publish failure leaves the cursor in place and is retried on the next
// wake or tick, so events reach the topics in revision order.
package forwarder

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mouton0815/aggregate-event-duality/internal/broker"
	"github.com/mouton0815/aggregate-event-duality/internal/model"
	"github.com/mouton0815/aggregate-event-duality/lib/kafka"
)

const (
	PersonTopic   = "person-events"
	LocationTopic = "location-events"

	retryInterval = 10 * time.Second
	sendTimeout   = 5 * time.Second
)

// Store is the slice of the aggregator the forwarder needs.
type Store interface {
	CurrentRevision() (uint64, error)
	PersonEventsSince(from uint64, limit int) ([]model.PersonEvent, error)
	LocationEventsSince(from uint64, limit int) ([]model.LocationEvent, error)
}

type Forwarder struct {
	store      Store
	brk        *broker.Broker
	producer   *kafka.Producer
	batchLimit int
	isRunning  bool
	stopCh     chan struct{}
}

func New(store Store, brk *broker.Broker, batchLimit int) *Forwarder {
	return &Forwarder{
		store:      store,
		brk:        brk,
		batchLimit: batchLimit,
		stopCh:     make(chan struct{}),
	}
}

// Start begins forwarding events committed after the current revision.
func (f *Forwarder) Start() error {
	if f.isRunning {
		logrus.Warn("Kafka forwarder is already running")
		return nil
	}
	if err := kafka.EnsureTopics(1, 1, PersonTopic, LocationTopic); err != nil {
		return err
	}
	revision, err := f.store.CurrentRevision()
	if err != nil {
		return err
	}
	f.producer = kafka.NewProducer()
	f.isRunning = true
	sub := f.brk.Subscribe(revision + 1)
	logrus.WithField("from", revision+1).Info("Starting Kafka forwarder")
	go f.processLoop(sub)
	return nil
}

func (f *Forwarder) Stop() {
	if !f.isRunning {
		return
	}
	f.isRunning = false
	close(f.stopCh)
}

func (f *Forwarder) processLoop(sub *broker.Subscription) {
	defer f.brk.Unsubscribe(sub)
	defer f.producer.Close()
	for {
		if err := f.drain(sub); err != nil {
			logrus.WithError(err).Warn("Forwarding failed, will retry")
		}
		select {
		case <-sub.Wake():
		case <-time.After(retryInterval):
		case <-f.stopCh:
			logrus.Info("Stopping Kafka forwarder")
			return
		}
	}
}

// drain publishes all stored events at or past the cursor. The cursor
// only advances past a revision once every payload of that revision was
// acknowledged by the cluster.
func (f *Forwarder) drain(sub *broker.Subscription) error {
	for {
		// Locations are read first: every location event has a person
		// event at the same revision, so the later person read covers them.
		locations, err := f.store.LocationEventsSince(sub.Next(), f.batchLimit)
		if err != nil {
			return err
		}
		persons, err := f.store.PersonEventsSince(sub.Next(), f.batchLimit)
		if err != nil {
			return err
		}
		if len(persons) == 0 && len(locations) == 0 {
			return nil
		}

		li := 0
		for _, ev := range persons {
			// Location events share the revision numbering, so emit any
			// location patches up to this revision first.
			for ; li < len(locations) && locations[li].Revision <= ev.Revision; li++ {
				if err := f.send(LocationTopic, locations[li].Revision, locations[li].Patch); err != nil {
					return err
				}
			}
			if err := f.send(PersonTopic, ev.Revision, ev.Patch); err != nil {
				return err
			}
			sub.Advance(ev.Revision + 1)
		}
		// Locations past the last person event are left for the next pass
		// when the person batch was truncated.
		for ; li < len(locations) && len(persons) < f.batchLimit; li++ {
			if err := f.send(LocationTopic, locations[li].Revision, locations[li].Patch); err != nil {
				return err
			}
			sub.Advance(locations[li].Revision + 1)
		}

		if len(persons) < f.batchLimit && len(locations) < f.batchLimit {
			return nil
		}
	}
}

func (f *Forwarder) send(topic string, revision uint64, patch []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	key := strconv.FormatUint(revision, 10)
	return f.producer.Send(ctx, topic, key, json.RawMessage(patch))
}
