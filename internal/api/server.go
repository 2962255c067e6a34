package api

import (
	"serwer-licencji/internal/config"
	"serwer-licencji/internal/database"
	"serwer-licencji/internal/registry"
	"serwer-licencji/internal/ws"
)

// Server is the read-only status surface for dashboard collaborators. It
// never writes leasing state.
type Server struct {
	config   *config.Config
	store    *database.Store
	registry *registry.Registry
	wsHub    *ws.Hub
}

func NewServer(cfg *config.Config, store *database.Store, reg *registry.Registry, wsHub *ws.Hub) *Server {
	return &Server{
		config:   cfg,
		store:    store,
		registry: reg,
		wsHub:    wsHub,
	}
}
