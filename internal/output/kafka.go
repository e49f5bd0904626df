package output

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"filepipe/internal/constants"
	"filepipe/internal/logger"
)

// KafkaHandler writes each file's reconstructed content as one message to
// the destination topic. Writers are cached per broker set since
// destinations usually share a cluster.
type KafkaHandler struct {
	defaultBrokers []string
	logger         logger.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaHandler(defaultBrokers []string, log logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		defaultBrokers: defaultBrokers,
		logger:         log,
		writers:        make(map[string]*kafka.Writer),
	}
}

func (h *KafkaHandler) CanHandle(destinationType string) bool {
	return destinationType == constants.DestinationTypeKafka
}

func (h *KafkaHandler) Write(ctx context.Context, req WriteRequest) error {
	if req.Destination.Topic == "" {
		return fmt.Errorf("kafka destination %q has no topic", req.Destination.Name)
	}

	brokers := req.Destination.Brokers
	if len(brokers) == 0 {
		brokers = h.defaultBrokers
	}

	writer := h.writerFor(brokers)
	err := writer.WriteMessages(ctx, kafka.Message{
		Topic: req.Destination.Topic,
		Key:   []byte(req.SourceID),
		Value: req.Content,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "fileName", Value: []byte(req.FileName)},
			{Key: "format", Value: []byte(req.Format)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write to topic %s: %w", req.Destination.Topic, err)
	}
	return nil
}

func (h *KafkaHandler) writerFor(brokers []string) *kafka.Writer {
	key := strings.Join(brokers, ",")

	h.mu.Lock()
	defer h.mu.Unlock()

	if w, ok := h.writers[key]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
	}
	h.writers[key] = w
	return w
}

func (h *KafkaHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for _, w := range h.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
