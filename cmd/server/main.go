package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mouton0815/aggregate-event-duality/app"
	"github.com/mouton0815/aggregate-event-duality/internal/aggregator"
	"github.com/mouton0815/aggregate-event-duality/internal/broker"
	"github.com/mouton0815/aggregate-event-duality/internal/forwarder"
	"github.com/mouton0815/aggregate-event-duality/internal/handler"
	"github.com/mouton0815/aggregate-event-duality/internal/reaper"
	"github.com/mouton0815/aggregate-event-duality/lib/kafka"
	"github.com/mouton0815/aggregate-event-duality/router"
)

func main() {
	app.Setup()

	brk := broker.NewBroker()
	agg := aggregator.New(app.Database.DB, brk)
	handler.Setup(agg, brk, app.Events.SSEKeepAlive, app.Events.BatchLimit)

	rp := reaper.New(agg, app.Events.ReaperInterval, app.Events.Retention)
	rp.Start()

	// The Kafka forwarder is a pure supplement; without brokers
	// configured the system runs on SSE delivery alone.
	var fwd *forwarder.Forwarder
	if len(app.Kafka.Brokers) > 0 {
		kafka.Setup()
		fwd = forwarder.New(agg, brk, app.Events.BatchLimit)
		if err := fwd.Start(); err != nil {
			logrus.WithError(err).Warn("Kafka forwarder disabled")
			fwd = nil
		}
	}

	fiberApp := router.New()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		logrus.Info("Shutting down...")
		rp.Stop()
		if fwd != nil {
			fwd.Stop()
		}
		if err := fiberApp.Shutdown(); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	addr := ":" + app.Server.Port
	logrus.WithField("addr", addr).Info("Listening")
	if err := fiberApp.Listen(addr); err != nil {
		logrus.Fatal("Server terminated: ", err)
	}
}
