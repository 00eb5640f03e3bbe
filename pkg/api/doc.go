/*
Package api exposes a running tunnel group to operators and orchestrators.

Two surfaces are provided:

	HTTP (HealthServer)
	  GET /health    liveness, unhealthy if any registered component is
	  GET /ready     200 once every critical component (the group) is RUNNING
	  GET /metrics   Prometheus exposition
	  GET /tunnels   JSON list of controllers with type, state and config file

	gRPC (GRPCServer)
	  grpc.health.v1.Health for "" and "tunnelgroup"
	  SERVING while the group is RUNNING, NOT_SERVING otherwise

The gRPC status is driven either directly through SetState or by Follow,
which consumes group.state events from the event broker. Both servers are
optional; cmd/tunnelgroup starts them when an address is configured.

Example:

	hs := api.NewHealthServer(g)
	go hs.Start("127.0.0.1:9090")

	gs := api.NewGRPCServer()
	go gs.Follow(broker.Subscribe())
	go gs.Start("127.0.0.1:9091")
*/
package api
