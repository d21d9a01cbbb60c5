package actuator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	CommandTopic   string // fmt template, e.g. cmnd/%s/POWER
	StateTopic     string // fmt template, e.g. stat/%s/POWER
	QoS            byte
	ConnectTimeout time.Duration
}

// mqttClient is the subset of mqtt.Client the driver uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTDriver switches Tasmota-style relays: commands are published to the command topic and the
// relay's reported power state is read back from the state topic.
type MQTTDriver struct {
	client       mqttClient
	commandTopic string
	stateTopic   string
	qos          byte

	mutex   sync.Mutex
	waiters map[string][]chan bool
}

// ConnectMQTT dials the broker once and subscribes to every relay's state topic.
func ConnectMQTT(opts MQTTOptions) (*MQTTDriver, error) {
	d := newMQTTDriver(nil, opts)

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Str("broker", opts.Broker).Msg("MQTT connection lost")
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Info().Str("broker", opts.Broker).Msg("MQTT connected")
			// subscriptions do not survive a clean-session reconnect
			if err := d.subscribe(); err != nil {
				log.Error().Err(err).Msg("Failed to subscribe to relay state topics")
			}
		})

	client := mqtt.NewClient(clientOpts)
	d.client = client

	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.Broker, err)
	}
	return d, nil
}

func newMQTTDriver(client mqttClient, opts MQTTOptions) *MQTTDriver {
	commandTopic := opts.CommandTopic
	if commandTopic == "" {
		commandTopic = "cmnd/%s/POWER"
	}
	stateTopic := opts.StateTopic
	if stateTopic == "" {
		stateTopic = "stat/%s/POWER"
	}
	return &MQTTDriver{
		client:       client,
		commandTopic: commandTopic,
		stateTopic:   stateTopic,
		qos:          opts.QoS,
		waiters:      make(map[string][]chan bool),
	}
}

func (d *MQTTDriver) subscribe() error {
	filter := fmt.Sprintf(d.stateTopic, "+")
	token := d.client.Subscribe(filter, d.qos, d.handleState)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	log.Info().Str("topic", filter).Msg("Subscribed to relay state")
	return nil
}

func (d *MQTTDriver) Close() {
	d.client.Disconnect(250)
}

func (d *MQTTDriver) Set(ctx context.Context, id string, on bool) error {
	payload := "OFF"
	if on {
		payload = "ON"
	}
	return d.publish(ctx, fmt.Sprintf(d.commandTopic, id), payload)
}

// State queries the relay and waits for the next power report on its state topic.
func (d *MQTTDriver) State(ctx context.Context, id string) (bool, error) {
	ch := make(chan bool, 1)
	d.mutex.Lock()
	d.waiters[id] = append(d.waiters[id], ch)
	d.mutex.Unlock()
	defer d.dropWaiter(id, ch)

	// an empty payload asks the relay to report its power state
	if err := d.publish(ctx, fmt.Sprintf(d.commandTopic, id), ""); err != nil {
		return false, err
	}

	select {
	case on := <-ch:
		return on, nil
	case <-ctx.Done():
		return false, fmt.Errorf("no state report from %s: %w", id, ctx.Err())
	}
}

func (d *MQTTDriver) publish(ctx context.Context, topic, payload string) error {
	token := d.client.Publish(topic, d.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	}
}

func (d *MQTTDriver) handleState(_ mqtt.Client, msg mqtt.Message) {
	id, ok := d.idFromTopic(msg.Topic())
	if !ok {
		return
	}
	on, err := parsePower(msg.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Ignoring unparseable relay state")
		return
	}

	d.mutex.Lock()
	waiters := d.waiters[id]
	delete(d.waiters, id)
	d.mutex.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- on:
		default:
		}
	}
}

func (d *MQTTDriver) dropWaiter(id string, ch chan bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	waiters := d.waiters[id]
	for i, w := range waiters {
		if w == ch {
			d.waiters[id] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(d.waiters[id]) == 0 {
		delete(d.waiters, id)
	}
}

func (d *MQTTDriver) idFromTopic(topic string) (string, bool) {
	prefix, suffix, found := strings.Cut(d.stateTopic, "%s")
	if !found || !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), suffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func parsePower(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected power payload %q", payload)
	}
}
