package kafka

import (
	"fmt"

	"github.com/segmentio/kafka-go"
)

// EnsureTopics creates the given topics on the cluster controller if
// they do not exist yet.
func EnsureTopics(partitions int, replicationFactor int, topics ...string) error {
	if KafkaConfig == nil || len(KafkaConfig.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is not set")
	}

	conn, err := kafka.Dial("tcp", KafkaConfig.Brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		configs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replicationFactor,
		}
	}
	return controllerConn.CreateTopics(configs...)
}
