package taskcard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Miv21/TaskManager/internal/storage"
)

const (
	EventTaskCreated        = "task_created"
	EventTaskUpdated        = "task_updated"
	EventTaskDeleted        = "task_deleted"
	EventTaskResponded      = "task_responded"
	EventCompensationFailed = "compensation_failed"
)

// TaskEvent — событие жизненного цикла задания для Kafka.
type TaskEvent struct {
	Type       string    `json:"type"`
	TaskID     string    `json:"taskId,omitempty"`
	ResponseID string    `json:"responseId,omitempty"`
	ActorID    string    `json:"actorId,omitempty"`
	TargetID   string    `json:"targetId,omitempty"`
	FileURL    string    `json:"fileUrl,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type EventProducer interface {
	SendTaskEvent(ctx context.Context, event TaskEvent) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) EventProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &kafkaProducer{writer: writer}
}

func (p *kafkaProducer) SendTaskEvent(ctx context.Context, event TaskEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.TaskID
	if key == "" {
		key = event.FileURL
	}

	message := kafka.Message{
		Key:   []byte(key),
		Value: eventJSON,
		Time:  time.Now(),
	}

	return p.writer.WriteMessages(ctx, message)
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}

// compensationAuditor транслирует проваленные компенсации координатора
// файлов в события Kafka.
type compensationAuditor struct {
	producer EventProducer
}

func NewCompensationAuditor(producer EventProducer) storage.CompensationAuditor {
	return &compensationAuditor{producer: producer}
}

func (a *compensationAuditor) CompensationFailed(fileURL, reason string) {
	event := TaskEvent{
		Type:      EventCompensationFailed,
		FileURL:   fileURL,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	// Не блокируем основной путь: аудит отправляется асинхронно
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.producer.SendTaskEvent(ctx, event)
	}()
}
