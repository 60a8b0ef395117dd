// Package testutil starts throwaway services for integration tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MosquittoImage is the broker image used by integration tests.
const MosquittoImage = "eclipse-mosquitto:2.0"

// BrokerReadyTimeout bounds the wait for the broker to accept clients.
const BrokerReadyTimeout = 10 * time.Second

const brokerConf = `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`

// StartMosquitto runs an anonymous Mosquitto broker and returns its tcp://
// URL once a client can connect. stop terminates the container.
func StartMosquitto(ctx context.Context) (broker string, stop func(), err error) {
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        MosquittoImage,
			ExposedPorts: []string{"1883/tcp"},
			Files: []tc.ContainerFile{{
				Reader:            strings.NewReader(brokerConf),
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0o644,
			}},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("1883/tcp"),
				wait.ForLog("running"),
			),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start mosquitto: %w", err)
	}
	stop = func() { _ = cont.Terminate(context.Background()) }

	broker, err = cont.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err != nil {
		stop()
		return "", nil, fmt.Errorf("mosquitto endpoint: %w", err)
	}
	if err := awaitBroker(ctx, broker); err != nil {
		stop()
		return "", nil, err
	}
	return broker, stop, nil
}

// awaitBroker retries a plain connect until it succeeds or BrokerReadyTimeout
// passes.
func awaitBroker(ctx context.Context, broker string) error {
	ctx, cancel := context.WithTimeout(ctx, BrokerReadyTimeout)
	defer cancel()
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("testutil-ready").SetConnectTimeout(time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		cli := paho.NewClient(opts)
		tok := cli.Connect()
		if tok.WaitTimeout(time.Second) && tok.Error() == nil {
			cli.Disconnect(0)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("mosquitto at %s not ready: %w", broker, ctx.Err())
		case <-tick.C:
		}
	}
}
