package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/mouton0815/aggregate-event-duality/app"
)

type Config struct {
	Brokers []string
}

var KafkaConfig *Config

// Setup reads the broker list from the app config and probes the first
// broker. A failed probe is only logged and does not stop the caller.
func Setup() {
	KafkaConfig = &Config{
		Brokers: app.Kafka.Brokers,
	}
	if len(KafkaConfig.Brokers) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := kafka.DialContext(ctx, "tcp", KafkaConfig.Brokers[0])
	if err != nil {
		logrus.WithError(err).Warn("Kafka broker not reachable")
		return
	}
	conn.Close()
	logrus.WithField("broker", KafkaConfig.Brokers[0]).Info("Kafka connection established")
}
