package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/registry"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// Group is the part of a tunnel group the HTTP surface reads
type Group interface {
	State() types.State
	Entries() []registry.Entry
}

// HealthServer serves health, readiness, metrics and the tunnel list over HTTP
type HealthServer struct {
	group  Group
	mux    *http.ServeMux
	server *http.Server
}

// TunnelInfo is one row of the /tunnels response
type TunnelInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	State       string `json:"state"`
	ConfigFile  string `json:"configFile"`
	StartOnLoad bool   `json:"startOnLoad"`
}

// TunnelsResponse is the /tunnels response
type TunnelsResponse struct {
	GroupState types.State  `json:"groupState"`
	Timestamp  time.Time    `json:"timestamp"`
	Tunnels    []TunnelInfo `json:"tunnels"`
}

// NewHealthServer creates the HTTP surface. group may be nil.
func NewHealthServer(group Group) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		group: group,
		mux:   mux,
		server: &http.Server{
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/health", getOnly(metrics.HealthHandler()))
	mux.HandleFunc("/ready", getOnly(metrics.ReadyHandler()))
	mux.HandleFunc("/tunnels", getOnly(hs.tunnelsHandler))
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Start serves on addr until Shutdown is called
func (hs *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return hs.Serve(lis)
}

// Serve serves on lis until Shutdown is called
func (hs *HealthServer) Serve(lis net.Listener) error {
	err := hs.server.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server. A server shut down before Start never serves.
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func (hs *HealthServer) tunnelsHandler(w http.ResponseWriter, r *http.Request) {
	resp := TunnelsResponse{
		GroupState: types.StateUninitialized,
		Timestamp:  time.Now(),
		Tunnels:    []TunnelInfo{},
	}

	if hs.group != nil {
		resp.GroupState = hs.group.State()
		for _, e := range hs.group.Entries() {
			resp.Tunnels = append(resp.Tunnels, TunnelInfo{
				Name:        e.Controller.Name(),
				Type:        e.Controller.Type(),
				State:       e.Controller.State(),
				ConfigFile:  e.ConfigFile,
				StartOnLoad: e.Controller.StartOnLoad(),
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}
