package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/homegrid/gateway-client/pkg/file"
)

// MessageHandler receives the topic and raw payload of an inbound push
// message. Payload decoding is the consumer's responsibility; decode failures
// must be logged and dropped, never panicked.
type MessageHandler func(topic string, payload []byte)

// MQTTClient defines the transport interface consumed by services: an
// idempotent connect, handle-based subscriptions that survive reconnects, and
// idempotent unsubscribe.
type MQTTClient interface {
	Connect() error
	Subscribe(topic string, qos byte, handler MessageHandler) (string, error)
	Unsubscribe(handle string)
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect(quiesce uint)
}

// subscription is one registered (topic, handler) pair. Registration order is
// preserved so resubscription after a reconnect replays in the same order.
type subscription struct {
	handle  string
	topic   string
	qos     byte
	handler MessageHandler
}

// MqttService wraps a paho client with a subscription registry. Subscriptions
// made before the connection is up are queued and applied on connect; on any
// reconnect every registered pair is resubscribed automatically.
type MqttService struct {
	client     mqtt.Client
	fileClient file.FileOperations
	logger     zerolog.Logger

	mu          sync.Mutex
	subs        []*subscription
	topicActive map[string]bool
	started     bool
	connected   bool
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations, logger zerolog.Logger) *MqttService {
	return &MqttService{
		fileClient:  fileClient,
		logger:      logger,
		topicActive: make(map[string]bool),
	}
}

// Initialize sets up the paho client. caCertPath may be empty for plain TCP
// brokers. The connection itself is established by Connect.
func (s *MqttService) Initialize(broker, clientID, caCertPath string) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID + "-" + uuid.New().String())
	opts.SetAutoReconnect(true)

	if caCertPath != "" {
		caCert, err := s.fileClient.ReadFileRaw(caCertPath)
		if err != nil {
			return fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return fmt.Errorf("failed to append CA certificate")
		}
		opts.SetTLSConfig(&tls.Config{RootCAs: caCertPool})
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		s.logger.Info().Str("broker", broker).Msg("MQTT connection established")
		s.onConnected()
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("MQTT connection lost, paho will retry")
		s.onConnectionLost()
	})

	s.client = mqtt.NewClient(opts)
	return nil
}

// Connect starts the shared connection. Safe to call from multiple consumers;
// only the first call dials. Broker-side subscriptions stay queued until the
// handshake completes and paho invokes the OnConnect handler.
func (s *MqttService) Connect() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return token.Error()
	}
	return nil
}

// onConnected marks the transport usable and replays the registry. Invoked by
// paho after every completed handshake, first connect and reconnects alike.
func (s *MqttService) onConnected() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.resubscribeAll()
}

// onConnectionLost queues new subscriptions until the next handshake.
func (s *MqttService) onConnectionLost() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

// Subscribe registers a handler for a topic and returns an opaque handle. If
// the connection is not up yet, the registration is queued and applied once
// the broker connects.
func (s *MqttService) Subscribe(topic string, qos byte, handler MessageHandler) (string, error) {
	sub := &subscription{
		handle:  uuid.New().String(),
		topic:   topic,
		qos:     qos,
		handler: handler,
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	needsBrokerSub := s.connected && !s.topicActive[topic]
	if needsBrokerSub {
		s.topicActive[topic] = true
	}
	s.mu.Unlock()

	if needsBrokerSub {
		if err := s.subscribeTopic(topic, qos); err != nil {
			return sub.handle, err
		}
	}
	return sub.handle, nil
}

// Unsubscribe removes the handler identified by handle. Unknown or already
// removed handles are a no-op. The broker topic is dropped only when its last
// handler goes away.
func (s *MqttService) Unsubscribe(handle string) {
	s.mu.Lock()
	var topic string
	for i, sub := range s.subs {
		if sub.handle == handle {
			topic = sub.topic
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	if topic == "" {
		s.mu.Unlock()
		return
	}

	remaining := 0
	for _, sub := range s.subs {
		if sub.topic == topic {
			remaining++
		}
	}
	dropBrokerSub := remaining == 0 && s.topicActive[topic]
	if dropBrokerSub {
		delete(s.topicActive, topic)
	}
	s.mu.Unlock()

	if dropBrokerSub {
		token := s.client.Unsubscribe(topic)
		token.Wait()
		if err := token.Error(); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from broker topic")
		}
	}
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	s.mu.Lock()
	s.started = false
	s.connected = false
	s.mu.Unlock()
	s.client.Disconnect(quiesce)
}

// subscribeTopic installs the broker-side subscription with a dispatcher that
// fans messages out to every registered handler for the topic.
func (s *MqttService) subscribeTopic(topic string, qos byte) error {
	token := s.client.Subscribe(topic, qos, func(client mqtt.Client, msg mqtt.Message) {
		s.dispatch(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to broker topic")
		return err
	}
	s.logger.Debug().Str("topic", topic).Msg("Subscribed to broker topic")
	return nil
}

// dispatch delivers a payload to all handlers registered for topic, in
// registration order. A misbehaving handler never takes down the dispatch
// chain.
func (s *MqttService) dispatch(topic string, payload []byte) {
	s.mu.Lock()
	handlers := make([]MessageHandler, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.topic == topic {
			handlers = append(handlers, sub.handler)
		}
	}
	s.mu.Unlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Str("topic", topic).Msg("Message handler panicked")
				}
			}()
			handler(topic, payload)
		}()
	}
}

// resubscribeAll replays every registered subscription against the broker in
// registration order. Invoked by paho on every (re)connect.
func (s *MqttService) resubscribeAll() {
	s.mu.Lock()
	s.topicActive = make(map[string]bool)
	ordered := make([]*subscription, len(s.subs))
	copy(ordered, s.subs)
	pending := make([]*subscription, 0, len(ordered))
	for _, sub := range ordered {
		if !s.topicActive[sub.topic] {
			s.topicActive[sub.topic] = true
			pending = append(pending, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range pending {
		if err := s.subscribeTopic(sub.topic, sub.qos); err != nil {
			s.logger.Error().Err(err).Str("topic", sub.topic).Msg("Resubscription failed")
		}
	}
}
