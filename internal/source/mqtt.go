package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/domain"
)

var errConnectionLost = errors.New("mqtt connection lost")

// Topic is where readings for one device are published.
func Topic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/%s/readings", prefix, deviceID)
}

// MQTT subscribes to readings relayed through a broker. Reconnects are
// handled by paho's auto-reconnect.
type MQTT struct {
	broker string
	prefix string
}

func NewMQTT(broker, prefix string) *MQTT {
	return &MQTT{broker: broker, prefix: prefix}
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Subscribe(ctx context.Context, deviceID string, _ Options, emit func(Event)) error {
	var mu sync.Mutex
	send := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() == nil {
			emit(ev)
		}
	}

	topic := Topic(m.prefix, deviceID)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		r, err := Decode(msg.Payload())
		if err != nil {
			send(Event{Kind: EventMalformed, Err: err})
			return
		}
		send(Event{Kind: EventReading, Reading: r})
	}

	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID("bess-dashboard-" + uuid.NewString()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// clean session: subscriptions do not survive a reconnect
		if token := c.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
			send(Event{Kind: EventTransportError, Err: token.Error()})
			return
		}
		send(Event{Kind: EventConnected})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("topic", topic).Msg("mqtt connection lost")
		send(Event{Kind: EventTransportError, Err: errors.Join(errConnectionLost, err)})
	})

	client := mqtt.NewClient(opts)
	client.Connect()
	log.Info().Str("broker", m.broker).Str("topic", topic).Msg("mqtt source running")

	<-ctx.Done()
	if client.IsConnected() {
		client.Unsubscribe(topic).WaitTimeout(time.Second)
	}
	client.Disconnect(250)
	return nil
}

// Publisher pushes readings to the broker; cmd/simulator uses it.
type Publisher struct {
	client mqtt.Client
	prefix string
}

func NewPublisher(broker, prefix string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("bess-simulator-" + uuid.NewString()).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &Publisher{client: client, prefix: prefix}, nil
}

func (p *Publisher) Publish(deviceID string, r domain.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	token := p.client.Publish(Topic(p.prefix, deviceID), 0, false, payload)
	token.Wait()
	return token.Error()
}

func (p *Publisher) Close() { p.client.Disconnect(250) }
