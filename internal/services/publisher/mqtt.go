// Copyright (c) 2024, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package publisher mirrors coordinator snapshots to an MQTT broker as
// retained messages, so home automation systems can read library counts and
// connectivity without polling the HTTP API.
package publisher

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/requestarr/internal/config"
	"github.com/autobrr/requestarr/internal/services/coordinator"
)

const (
	DefaultTopic = "requestarr/status"

	availabilityOnline  = "online"
	availabilityOffline = "offline"

	publishQoS     = 1
	publishTimeout = 5 * time.Second
)

var ErrNoBroker = errors.New("mqtt broker is not configured")

// statusSource is what the publisher reads besides the snapshot itself.
type statusSource interface {
	LastUpdateSuccess() bool
}

// mqttClient is the subset of paho.Client used here.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// update is one encoded snapshot waiting to be sent.
type update struct {
	payload   []byte
	connected string
}

// Publisher writes every snapshot to <topic> and connectivity to
// <topic>/connected. Broker availability is announced on
// <topic>/availability, with a last will of "offline".
//
// Sends happen on the publisher's own goroutine. Only the latest snapshot is
// kept while a send is in flight, so a slow or reconnecting broker never
// holds up the caller.
type Publisher struct {
	client mqttClient
	topic  string
	source statusSource

	pending chan update
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// New connects to the configured broker.
func New(cfg config.MQTTConfig, source statusSource) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, ErrNoBroker
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "requestarr-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions().AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(publishTimeout)
	opts.SetAutoReconnect(true)
	opts.SetWill(availabilityTopic(topic), availabilityOffline, publishQoS, true)
	opts.SetOnConnectHandler(func(client paho.Client) {
		token := client.Publish(availabilityTopic(topic), publishQoS, true, availabilityOnline)
		token.WaitTimeout(publishTimeout)
		log.Debug().Str("broker", cfg.Broker).Str("client_id", clientID).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}

	log.Info().Str("broker", cfg.Broker).Str("topic", topic).Msg("MQTT publisher connected")
	return newPublisher(client, topic, source), nil
}

func newPublisher(client mqttClient, topic string, source statusSource) *Publisher {
	p := &Publisher{
		client:  client,
		topic:   topic,
		source:  source,
		pending: make(chan update, 1),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case u := <-p.pending:
			p.send(p.topic, u.payload)
			p.send(p.topic+"/connected", []byte(u.connected))
		}
	}
}

func availabilityTopic(topic string) string {
	return topic + "/availability"
}

// Publish queues a snapshot for sending and returns immediately. A snapshot
// still waiting is replaced. It is shaped to be passed to
// Coordinator.Subscribe.
func (p *Publisher) Publish(snap *coordinator.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode snapshot for MQTT")
		return
	}

	connected := "false"
	if p.source != nil && p.source.LastUpdateSuccess() {
		connected = "true"
	}

	u := update{payload: payload, connected: connected}
	for {
		select {
		case <-p.done:
			return
		case p.pending <- u:
			return
		default:
		}
		// drop the stale snapshot
		select {
		case <-p.pending:
		default:
		}
	}
}

func (p *Publisher) send(topic string, payload []byte) {
	token := p.client.Publish(topic, publishQoS, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", topic).Msg("MQTT publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("MQTT publish failed")
	}
}

// Close stops the sender, announces the publisher offline and disconnects.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()

	token := p.client.Publish(availabilityTopic(p.topic), publishQoS, true, availabilityOffline)
	token.WaitTimeout(publishTimeout)
	p.client.Disconnect(250)
}
