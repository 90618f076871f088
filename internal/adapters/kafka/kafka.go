package kafka

import (
	"github.com/IBM/sarama"
)

// NewProducerConfig is the producer setup used for the message stream.
// The hash partitioner keys on room id so a room keeps its order.
func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "dm-chat-service"
	config.Producer.MaxMessageBytes = 1000000
	return config
}

func InitKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, NewProducerConfig())
}
