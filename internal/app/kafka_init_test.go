package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	for _, brokers := range []string{"", " ", " , "} {
		producer, err := initKafkaProducer(brokers, logger)
		if err != nil {
			t.Errorf("expected no error for brokers %q, got %v", brokers, err)
		}
		if producer != nil {
			t.Errorf("expected nil producer for brokers %q", brokers)
		}
	}
}

func TestInitKafkaProducer_UnreachableBrokers(t *testing.T) {
	logger := log.WithField("test", "kafka")

	cases := []string{
		"invalid-broker:9999",
		"broker1.invalid:9092, broker2.invalid:9092",
	}
	for _, brokers := range cases {
		producer, err := initKafkaProducer(brokers, logger)
		if err == nil {
			closeKafkaProducer(producer, logger)
			t.Errorf("expected error for unreachable brokers %q", brokers)
			continue
		}
		if producer != nil {
			t.Errorf("expected nil producer on error for %q", brokers)
		}
	}
}

func TestCloseKafkaProducer_Nil(_ *testing.T) {
	closeKafkaProducer(nil, log.WithField("test", "kafka"))
}
