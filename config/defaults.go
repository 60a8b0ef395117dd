package config

import (
	"github.com/qetesh/bratwurstpower/core/metrics"
	"github.com/qetesh/bratwurstpower/core/pins"
	"github.com/qetesh/bratwurstpower/infra/hw/monitor"
	"github.com/qetesh/bratwurstpower/infra/hw/pca9557"
)

// Default returns the configuration of a stock Bratwurst Power board.
func Default() Config {
	return Config{
		General: GeneralConfig{
			MeasurementInterval: 5,
			PollIntervalMS:      100,
			RuntimeDirectory:    "/run/bratwurstpower",
			LogLevel:            "info",
		},
		MQTT: MQTTConfig{
			Port:                1883,
			BaseTopic:           "bratwurstpower/",
			HassDiscoveryPrefix: "homeassistant/",
			KeepAliveSeconds:    60,
			PublishTimeoutMS:    2000,
		},
		I2C: I2CConfig{
			ExpanderAddress: pca9557.DefaultAddress,
			Retries:         3,
			BackoffMS:       10,
		},
		Sensors: []monitor.Config{
			{Name: "Raspi", Address: 0x40, ShuntOhms: 0.01, MaxAmps: 3, MaxVolts: 6},
			{Name: "USB1", Address: 0x41, ShuntOhms: 0.01, MaxAmps: 3, MaxVolts: 6},
			{Name: "USB2", Address: 0x42, ShuntOhms: 0.01, MaxAmps: 3, MaxVolts: 6},
			{Name: "EXT", Address: 0x43, ShuntOhms: 0.01, MaxAmps: 3, MaxVolts: 6},
			{Name: "Input", Address: 0x44, ShuntOhms: 0.01, MaxAmps: 5, MaxVolts: 17},
		},
		Pins: []pins.Def{
			{Name: "LED", Pin: 0},
			{Name: "IO1", Pin: 1},
			{Name: "IO2", Pin: 2},
			{Name: "IO3", Pin: 3},
			{Name: "IO4", Pin: 4},
			{Name: "USB2", Pin: 5},
			{Name: "USB1", Pin: 6},
			{Name: "EXT", Pin: 7},
		},
		Metrics: metrics.Config{PrometheusPort: 9102},
	}
}
