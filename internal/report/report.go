// Package report streams round results to an MQTT broker so a sweep can be
// watched live from outside the control host. The publisher is optional; a
// run without a configured broker skips it entirely.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nus-sys/neobft-artifact/internal/runner"
)

const connectTimeout = 10 * time.Second

// Publisher publishes round results to neo/results/<crypto>
type Publisher struct {
	client mqtt.Client
}

type roundMessage struct {
	Crypto     string  `json:"crypto"`
	F          int     `json:"f"`
	Iter       int     `json:"iter"`
	Failed     bool    `json:"failed"`
	Throughput float64 `json:"throughput"`
	Latency    string  `json:"latency"`
	Timestamp  int64   `json:"timestamp"`
}

// NewPublisher connects to the broker; broker is a URL like tcp://host:1883
func NewPublisher(broker, clientID string) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", broker)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, token.Error())
	}

	return &Publisher{client: client}, nil
}

// Record publishes one round result at QoS 1
func (p *Publisher) Record(crypto string, f, iter int, result runner.RoundResult) error {
	payload, err := json.Marshal(roundMessage{
		Crypto:     crypto,
		F:          f,
		Iter:       iter,
		Failed:     result.Failed,
		Throughput: result.Throughput,
		Latency:    result.Latency,
		Timestamp:  time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	token := p.client.Publish("neo/results/"+crypto, 1, false, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
