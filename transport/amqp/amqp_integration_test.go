package amqp_test

import (
	"context"
	"flag"
	"fmt"
	"testing"
	"time"

	"github.com/ivorscott/saas-core/transport/amqp"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var integration = flag.Bool("integration", false, "perform integration tests")

func runRabbitMQ(t *testing.T) string {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(60 * time.Second),
	}

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("rabbitmq container unavailable: %v", err)
	}

	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}

	port, err := ctr.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

func TestPublishIsConfirmedIntegration(t *testing.T) {
	if !*integration {
		t.Skip("skipping integration test")
	}

	url := runRabbitMQ(t)

	p, err := amqp.Dial(amqp.Config{URL: url, Exchange: "messages"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	defer p.Close()

	conn, err := amqp091.Dial(url)
	if err != nil {
		t.Fatalf("dial consumer: %v", err)
	}

	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		t.Fatalf("channel: %v", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}

	assert.NoError(t, ch.QueueBind(q.Name, "identity.*", "messages", false, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	assert.NoError(t, p.Publish(ctx, "identity.42", []byte(`{"type":"UserAdded"}`)))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	select {
	case d := <-deliveries:
		assert.Equal(t, "identity.42", d.RoutingKey)
		assert.JSONEq(t, `{"type":"UserAdded"}`, string(d.Body))
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}
}
