package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vision-scan/internal/domain/entity"
	"vision-scan/internal/domain/port"
)

// MQTTConfig параметры подключения к брокеру
type MQTTConfig struct {
	Broker   string // host:port
	ClientID string
	Topic    string // базовый топик, к нему добавляется источник попытки
	QoS      byte
}

// MQTTSink публикует метрики попыток в MQTT
type MQTTSink struct {
	cfg    MQTTConfig
	Client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTSink создаёт sink без подключения
func NewMQTTSink(cfg MQTTConfig) *MQTTSink {
	return &MQTTSink{cfg: cfg}
}

// Connect подключается к брокеру
func (s *MQTTSink) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", s.cfg.Broker))
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		s.setConnected(true)
		log.Printf("[MQTT] connected to %s as %s", s.cfg.Broker, s.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		s.setConnected(false)
		log.Printf("[MQTT] connection lost, waiting for reconnect: %v", err)
	}

	s.Client = mqtt.NewClient(opts)

	log.Printf("[MQTT] connecting to %s", s.cfg.Broker)
	token := s.Client.Connect()
	if !waitToken(ctx, token, 5*time.Second) {
		// клиент с повторным подключением иначе продолжит попытки в фоне
		s.Client.Disconnect(0)
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	s.setConnected(true)
	return nil
}

// Emit публикует метрики в <topic>/<source>
func (s *MQTTSink) Emit(ctx context.Context, m entity.ScanMetrics) error {
	if !s.isConnected() {
		s.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := newPayload(m).JSON()
	if err != nil {
		s.countError()
		return err
	}

	topic := topicFor(s.cfg.Topic, m.Source)
	token := s.Client.Publish(topic, s.cfg.QoS, false, payload)
	if !waitToken(ctx, token, 2*time.Second) {
		s.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		s.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	s.mu.Lock()
	s.published++
	s.mu.Unlock()
	return nil
}

// Stats счётчики опубликованных сообщений и ошибок
func (s *MQTTSink) Stats() (published, errors uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published, s.errors
}

// Disconnect закрывает соединение
func (s *MQTTSink) Disconnect() {
	if s.Client != nil && s.Client.IsConnected() {
		s.Client.Disconnect(250)
		log.Printf("[MQTT] disconnected")
	}
	s.setConnected(false)
}

func topicFor(base string, source entity.Source) string {
	if source == "" {
		return base
	}
	return fmt.Sprintf("%s/%s", base, source)
}

// waitToken ждёт завершения токена не дольше timeout и не дольше ctx
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *MQTTSink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *MQTTSink) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *MQTTSink) countError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// Проверка реализации интерфейса
var _ port.MetricsSink = (*MQTTSink)(nil)
