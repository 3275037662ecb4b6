package ingestor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/shopspring/decimal"
	config "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Config"
	engine "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Engine"
	logger "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Logger"
	metrics "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Metrics"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	api_models "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models/api"
)

const unknownSensor = "unknown"

// ReadingSubmitter stores validated readings
type ReadingSubmitter interface {
	Submit(ctx context.Context, sensor string, temperature *decimal.Decimal, humidity *int) (*wthmodels.Reading, error)
}

// Publisher sends a payload to an MQTT topic
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type clientPublisher struct {
	client mqtt.Client
}

func (p clientPublisher) Publish(topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return errors.New("mqtt client is not connected")
	}
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	return token.Error()
}

// inbound is a decoded message waiting for the batch writer
type inbound struct {
	Sensor  string
	Topic   string
	Request api_models.AddReadingRequest
}

type Ingestor struct {
	mqttCfg    config.MQTTConfig
	batchCfg   config.BatchConfig
	submitter  ReadingSubmitter
	mqttClient mqtt.Client
	publisher  Publisher
	msgCh      chan inbound
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	logger     *logger.Logger
	now        func() time.Time
}

func New(cfg *config.IngestorConfig, submitter ReadingSubmitter, logger *logger.Logger) *Ingestor {
	return &Ingestor{
		mqttCfg:   cfg.MQTT,
		batchCfg:  cfg.Batch,
		submitter: submitter,
		msgCh:     make(chan inbound, 4096),
		done:      make(chan struct{}),
		logger:    logger.WithComponent("mqtt_ingestor"),
		now:       time.Now,
	}
}

func (i *Ingestor) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(i.mqttCfg.BrokerURL()).
		SetClientID(i.mqttCfg.ClientID).
		SetOrderMatters(false).
		SetKeepAlive(i.mqttCfg.KeepAlive).
		SetPingTimeout(i.mqttCfg.PingTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false)

	if i.mqttCfg.BrokerUser != "" {
		opts.SetUsername(i.mqttCfg.BrokerUser)
		opts.SetPassword(i.mqttCfg.BrokerPass)
	}

	if i.mqttCfg.UseTLS {
		tlsCfg, err := tlsConfig(i.mqttCfg.CACertPath)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		i.logger.Logger.Error().Err(err).Msg("MQTT connection lost")
	}
	opts.OnConnect = func(c mqtt.Client) {
		topic := i.mqttCfg.SubscriptionTopic()
		i.logger.Logger.Info().Str("topic", topic).Msg("MQTT connected, subscribing to topic")
		if token := c.Subscribe(topic, 1, i.onMessage); token.Wait() && token.Error() != nil {
			i.logger.Logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		}
	}

	i.mqttClient = mqtt.NewClient(opts)
	i.publisher = clientPublisher{client: i.mqttClient}
	if tk := i.mqttClient.Connect(); tk.Wait() && tk.Error() != nil {
		return tk.Error()
	}

	i.startWriter(ctx)
	return nil
}

func (i *Ingestor) startWriter(ctx context.Context) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.batchWriter(ctx)
	}()
}

// Stop disconnects from the broker and waits for queued readings to be written.
// msgCh is never closed: paho handlers may still be running after Disconnect,
// and they give up on the send once done is closed.
func (i *Ingestor) Stop() {
	i.stopOnce.Do(func() {
		if i.mqttClient != nil && i.mqttClient.IsConnected() {
			i.mqttClient.Disconnect(500)
		}
		close(i.done)
		i.wg.Wait()
	})
}

func (i *Ingestor) IsConnected() bool {
	return i.mqttClient != nil && i.mqttClient.IsConnected()
}

// onMessage decodes a reading published on sensors/<sensor>/...; a sensor
// field in the payload takes precedence over the topic segment.
func (i *Ingestor) onMessage(_ mqtt.Client, m mqtt.Message) {
	i.logger.Logger.Debug().Str("topic", m.Topic()).Str("payload", string(m.Payload())).Msg("Received MQTT message")

	sensor := sensorFromTopic(m.Topic())

	var req api_models.AddReadingRequest
	if err := json.Unmarshal(m.Payload(), &req); err != nil {
		i.logger.Logger.Warn().Err(err).Str("topic", m.Topic()).Msg("Dropping undecodable payload")
		metrics.ReadingsSubmitted.WithLabelValues(metrics.SourceMQTT, metrics.ResultInvalid).Inc()
		i.publishError(sensor, api_models.IngestErrInvalidPayload, api_models.MsgInvalidBody)
		return
	}
	if req.Sensor != nil {
		sensor = req.SensorValue()
	}

	select {
	case i.msgCh <- inbound{Sensor: sensor, Topic: m.Topic(), Request: req}:
	case <-i.done:
		i.logger.Logger.Warn().Str("topic", m.Topic()).Msg("Dropping reading received during shutdown")
	}
}

func (i *Ingestor) batchWriter(ctx context.Context) {
	batch := make([]inbound, 0, i.batchCfg.Size)
	timer := time.NewTimer(i.batchCfg.Window)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		stored := 0
		for _, in := range batch {
			if i.store(ctx, in) {
				stored++
			}
		}
		i.logger.Logger.Info().Int("batch_size", len(batch)).Int("stored", stored).Msg("Flushed reading batch")
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-i.done:
			for {
				select {
				case in := <-i.msgCh:
					batch = append(batch, in)
				default:
					flush()
					return
				}
			}
		case in := <-i.msgCh:
			batch = append(batch, in)
			if len(batch) >= i.batchCfg.Size {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(i.batchCfg.Window)
			}
		case <-timer.C:
			flush()
			timer.Reset(i.batchCfg.Window)
		}
	}
}

// store submits one reading and reports rejections on the error topic
func (i *Ingestor) store(ctx context.Context, in inbound) bool {
	sensor := in.Sensor
	if sensor == unknownSensor {
		sensor = ""
	}
	_, err := i.submitter.Submit(ctx, sensor, in.Request.Temperature, in.Request.Humidity)
	metrics.ReadingsSubmitted.WithLabelValues(metrics.SourceMQTT, metrics.Result(err)).Inc()
	if err == nil {
		return true
	}

	errorType := api_models.IngestErrStore
	if engine.IsValidation(err) {
		errorType = api_models.IngestErrValidation
		i.logger.Logger.Warn().Err(err).Str("sensor", in.Sensor).Str("topic", in.Topic).Msg("Rejected invalid reading")
	} else {
		i.logger.Logger.Error().Err(err).Str("sensor", in.Sensor).Msg("Failed to store reading")
	}
	i.publishError(in.Sensor, errorType, engine.SubmitMessage(err))
	return false
}

// publishError publishes an error message to the error topic for device feedback
func (i *Ingestor) publishError(sensor, errorType, message string) {
	if i.publisher == nil {
		return
	}

	payloadJSON, err := json.Marshal(api_models.IngestError{
		ErrorType: errorType,
		Message:   message,
		Sensor:    sensor,
		Timestamp: i.now().UTC(),
	})
	if err != nil {
		i.logger.Logger.Error().Err(err).Msg("Failed to marshal error payload")
		return
	}

	errorTopic := ErrorTopic(sensor)
	if err := i.publisher.Publish(errorTopic, payloadJSON); err != nil {
		i.logger.Logger.Error().Err(err).Str("topic", errorTopic).Msg("Failed to publish error")
		return
	}
	i.logger.Logger.Info().Str("topic", errorTopic).Str("message", message).Msg("Published error")
}

// ErrorTopic returns the topic rejections for sensor are published on
func ErrorTopic(sensor string) string {
	return "ingestor/errors/" + sensor
}

func sensorFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[1] == "" {
		return unknownSensor
	}
	return parts[1]
}

func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("bad CA file")
	}
	cfg.RootCAs = cp
	return cfg, nil
}
