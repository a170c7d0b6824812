package server

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	v1 "github.com/rfpflow/rfpflow/internal/api/v1"
	"github.com/rfpflow/rfpflow/internal/api/ws"
	"github.com/rfpflow/rfpflow/internal/auth"
	"github.com/rfpflow/rfpflow/internal/store/postgres"
	redisstore "github.com/rfpflow/rfpflow/internal/store/redis"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

func registerAuthRoutes(r chi.Router, authSvc *auth.Service) {
	cfg := huma.DefaultConfig("RFPflow Auth API", "1.0.0")
	cfg.Servers = []*huma.Server{{URL: "/api/v1"}}
	api := humachi.New(r, cfg)
	v1.RegisterAuthRoutes(api, authSvc)
}

func registerAPIRoutes(r chi.Router, store *postgres.Store, cache *redisstore.Client, authSvc *auth.Service, engine *workflow.Engine, catalogTTL time.Duration) {
	cfg := huma.DefaultConfig("RFPflow API", "1.0.0")
	cfg.Servers = []*huma.Server{{URL: "/api/v1"}}
	api := humachi.New(r, cfg)

	v1.RegisterMeRoute(api, authSvc)
	v1.RegisterChatRoutes(api, store, engine)
	v1.RegisterCatalogRoutes(api, store, cache, catalogTTL)
	v1.RegisterDashboardRoutes(api, store)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/chat/{sessionID}", hub.ServeChat)
}
