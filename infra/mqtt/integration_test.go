package mqtt

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qetesh/bratwurstpower/core/discovery"
	"github.com/qetesh/bratwurstpower/core/model"
	"github.com/qetesh/bratwurstpower/infra/logger"
	"github.com/qetesh/bratwurstpower/internal/testutil"
)

func TestBrokerRoundTrip(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") == "" {
		t.Skip("DOCKER_AVAILABLE not set")
	}
	ctx := context.Background()
	broker, cleanup, err := testutil.StartMosquitto(ctx)
	require.NoError(t, err)
	defer cleanup()

	var mu sync.Mutex
	got := map[string]string{}
	obs := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("observer"))
	tok := obs.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	defer obs.Disconnect(100)
	tok = obs.Subscribe("#", 1, func(_ paho.Client, m paho.Message) {
		mu.Lock()
		got[m.Topic()] = string(m.Payload())
		mu.Unlock()
	})
	require.True(t, tok.WaitTimeout(5*time.Second))

	msgs, err := discovery.NewBuilder("itest", "homeassistant/", topics).Build([]string{"LED"}, nil)
	require.NoError(t, err)
	app := &recordingApplier{}
	cli, err := NewClient(Config{Broker: broker, ClientID: "bwp-itest", QoS: 1}, topics, logger.NopLogger{},
		WithCommands(app), WithDiscovery(msgs))
	require.NoError(t, err)

	seen := func(topic, payload string) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			return got[topic] == payload
		}
	}
	require.Eventually(t, seen(topics.Status(), "online"), 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := got[msgs[0].Topic]
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, cli.HandleSnapshot(ctx, model.Snapshot{Power: model.PowerStats{"Raspi": {Voltage: 5}}}))
	require.Eventually(t, seen(topics.PowerStats(), `{"Raspi":{"voltage":5,"current":0,"power":0,"shunt_voltage":0}}`), 5*time.Second, 20*time.Millisecond)

	tok = obs.Publish(topics.Command(), 1, false, `{"LED":"on"}`)
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.Eventually(t, func() bool {
		app.mu.Lock()
		defer app.mu.Unlock()
		return len(app.payloads) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cli.Close()
	require.Eventually(t, seen(topics.Status(), "offline"), 5*time.Second, 20*time.Millisecond)
	assert.False(t, cli.Connected())
}
