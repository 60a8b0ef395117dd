package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qetesh/bratwurstpower/config"
	"github.com/qetesh/bratwurstpower/core/model"
	"github.com/qetesh/bratwurstpower/infra/hw/pca9557"
	"github.com/qetesh/bratwurstpower/internal/eventbus"
	"github.com/qetesh/bratwurstpower/internal/hwtest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.General.Hostname = "bench"
	cfg.General.RuntimeDirectory = t.TempDir()
	cfg.General.MeasurementInterval = 0.02
	cfg.General.PollIntervalMS = 5
	cfg.I2C.Retries = 0
	return &cfg
}

func TestNewWithBusInitialisesExpander(t *testing.T) {
	bus := hwtest.NewBus()
	svc, err := NewWithBus(testConfig(t), bus, WithoutMetrics())
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	assert.Equal(t, byte(0xFF), bus.Get(pca9557.DefaultAddress, pca9557.RegConfig))
	assert.Equal(t, byte(0x00), bus.Get(pca9557.DefaultAddress, pca9557.RegPolarity))
	for addr := uint16(0x40); addr <= 0x44; addr++ {
		assert.NotEmpty(t, bus.Writes(addr), "sensor 0x%02X not calibrated", addr)
	}
}

func TestCommandAndSample(t *testing.T) {
	bus := hwtest.NewBus()
	svc, err := NewWithBus(testConfig(t), bus, WithoutMetrics())
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	rep := svc.Dispatcher().Apply([]byte(`{"IO1":"on","USB2":"off"}`))
	require.NoError(t, rep.Err)
	assert.Equal(t, []string{"IO1", "USB2"}, rep.Applied)

	assert.Equal(t, byte(0b0000_0010), bus.Get(pca9557.DefaultAddress, pca9557.RegOutput))
	assert.Equal(t, byte(0b1101_1101), bus.Get(pca9557.DefaultAddress, pca9557.RegConfig))

	snap := svc.Sample()
	require.Len(t, snap.Power, 5)
	assert.Equal(t, model.SensorReading{}, snap.Power["Input"])
	require.Len(t, snap.Pins, 8)
	assert.Equal(t, model.ModeOn, snap.Pins["IO1"].State)
	assert.Equal(t, model.ModeOff, snap.Pins["USB2"].State)
	assert.Equal(t, model.ModeDefault, snap.Pins["LED"].State)
}

func TestRunWritesSnapshotAndMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.PrometheusEnabled = true
	cfg.Metrics.PrometheusPort = 0
	reg := prometheus.NewRegistry()

	svc, err := NewWithBus(cfg, hwtest.NewBus(), WithRegistry(reg))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	path := filepath.Join(cfg.General.RuntimeDirectory, "powerstats.json")
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stats model.PowerStats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Len(t, stats, 5)

	svc.Dispatcher().Apply([]byte(`{"LED":"on","NOPE":"on"}`))
	require.Eventually(t, func() bool {
		n, err := testutil.GatherAndCount(reg, "bratwurst_commands_total")
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "bratwurst_rail_voltage_volts")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.NoError(t, svc.Close())
}

func TestDiscoveryMessagesWithoutHardware(t *testing.T) {
	cfg := testConfig(t)
	msgs, err := DiscoveryMessages(cfg)
	require.NoError(t, err)
	assert.Len(t, msgs, 8+5*4)
	assert.Equal(t, "homeassistant/select/bratwurst_power_bench/LED/config", msgs[0].Topic)
	assert.Equal(t, "bratwurstpower/bench/status", Topics(cfg).Status())
}

func TestNewWithBusFailsOnDeadExpander(t *testing.T) {
	bus := hwtest.NewBus()
	bus.FailNext(assert.AnError)
	_, err := NewWithBus(testConfig(t), bus, WithoutMetrics())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewWithBusClosesEventsOnFailure(t *testing.T) {
	cases := map[string][]error{
		"expander": {assert.AnError},
		// both expander writes succeed, the first sensor calibration fails
		"sensor": {nil, nil, assert.AnError},
	}
	for name, fail := range cases {
		t.Run(name, func(t *testing.T) {
			bus := hwtest.NewBus()
			bus.FailNext(fail...)
			events := eventbus.New()
			sub := events.Subscribe()

			_, err := NewWithBus(testConfig(t), bus, WithoutMetrics(), WithEvents(events))
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
			_, open := <-sub
			assert.False(t, open, "event bus left open")
		})
	}
}

func TestInspectLeavesDaemonStateAlone(t *testing.T) {
	cfg := testConfig(t)
	bus := hwtest.NewBus()
	svc, err := NewWithBus(cfg, bus, WithoutMetrics())
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	rep := svc.Dispatcher().Apply([]byte(`{"IO1":"on","USB2":"off"}`))
	require.NoError(t, rep.Err)
	// line levels as the chip would report them
	bus.Set(pca9557.DefaultAddress, pca9557.RegInput, 0b0000_0011)
	bus.SetWord(0x40, 0x01, 500)     // 5 mV over 0.01 ohm
	bus.SetWord(0x40, 0x02, 1250<<3) // 5.00 V
	bus.Reset()

	snap, err := Inspect(cfg, bus)
	require.NoError(t, err)

	for _, addr := range []uint16{pca9557.DefaultAddress, 0x40, 0x41, 0x42, 0x43, 0x44} {
		assert.Empty(t, bus.Writes(addr), "write to 0x%02X", addr)
	}
	assert.Equal(t, byte(0b1101_1101), bus.Get(pca9557.DefaultAddress, pca9557.RegConfig))

	require.Len(t, snap.Pins, 8)
	assert.Equal(t, model.ModeOn, snap.Pins["IO1"].State)
	assert.Equal(t, model.ModeOff, snap.Pins["USB2"].State)
	assert.Equal(t, model.ModeDefault, snap.Pins["LED"].State)
	assert.Equal(t, model.High, *snap.Pins["LED"].Value)

	require.Len(t, snap.Power, 5)
	assert.Equal(t, model.SensorReading{Voltage: 5, Current: 500, Power: 2.5, ShuntVoltage: 5}, snap.Power["Raspi"])
	assert.Equal(t, model.SensorReading{}, snap.Power["Input"])

	// the daemon's own view is unchanged
	assert.Equal(t, model.ModeOn, svc.Sample().Pins["IO1"].State)
}
