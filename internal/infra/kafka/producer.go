package kafka

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/config"
)

// Producer wraps a sarama AsyncProducer and drains its error channel into the log.
type Producer struct {
	producer  sarama.AsyncProducer
	logger    *zap.Logger
	prefix    string
	done      chan struct{}
	closeOnce sync.Once
	drained   sync.WaitGroup
}

// NewProducer dials the brokers and starts the error drain.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are not configured")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.ClientID = "memora-api"
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	// events of one user land on one partition
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	async, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := newProducer(async, cfg.TopicPrefix, logger)

	p.logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return p, nil
}

func newProducer(async sarama.AsyncProducer, prefix string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{
		producer: async,
		logger:   logger,
		prefix:   strings.TrimSuffix(prefix, "."),
		done:     make(chan struct{}),
	}
	p.drained.Add(1)
	go p.drainErrors()
	return p
}

func (p *Producer) drainErrors() {
	defer p.drained.Done()
	errs := p.producer.Errors()
	for {
		select {
		case perr, ok := <-errs:
			if !ok {
				return
			}
			if perr == nil {
				continue
			}
			fields := []zap.Field{zap.Error(perr.Err)}
			if perr.Msg != nil {
				fields = append(fields, zap.String("topic", perr.Msg.Topic))
			}
			p.logger.Error("kafka delivery failed", fields...)
		case <-p.done:
			return
		}
	}
}

// Input exposes the producer's input channel.
func (p *Producer) Input() chan<- *sarama.ProducerMessage {
	return p.producer.Input()
}

// TopicName prefixes the event type with the configured topic prefix.
func (p *Producer) TopicName(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	if strings.HasPrefix(eventType, p.prefix+".") {
		return eventType
	}
	return p.prefix + "." + eventType
}

// Close flushes buffered messages and stops the error drain.
func (p *Producer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.logger.Info("closing kafka producer")
		close(p.done)
		p.drained.Wait()
		if cerr := p.producer.Close(); cerr != nil {
			err = fmt.Errorf("close kafka producer: %w", cerr)
		}
	})
	return err
}
