package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

func startGRPC(t *testing.T) (*GRPCServer, healthpb.HealthClient) {
	s := NewGRPCServer()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return s, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestGRPCHealthTracksState(t *testing.T) {
	s, client := startGRPC(t)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))

	s.SetState(types.StateRunning)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ServiceName))

	s.SetState(types.StateStopping)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ServiceName))
}

func TestGRPCHealthFollowsEvents(t *testing.T) {
	s, client := startGRPC(t)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	done := make(chan struct{})
	go func() {
		s.Follow(sub)
		close(done)
	}()

	broker.Publish(events.NewEvent(events.EventControllersLoaded, "loaded", nil))
	broker.Publish(events.NewEvent(events.EventGroupState, "group RUNNING", map[string]string{
		"from": "STARTING",
		"to":   "RUNNING",
	}))

	require.Eventually(t, func() bool {
		return check(t, client, ServiceName) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	broker.Unsubscribe(sub)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Follow did not return after unsubscribe")
	}
}

func TestGRPCUnknownService(t *testing.T) {
	_, client := startGRPC(t)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "other"})
	assert.Error(t, err)
}
