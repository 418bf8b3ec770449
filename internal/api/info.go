package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Version is reported by /health and /api/v1/info.
const Version = "1.0.0"

type InfoHandler struct {
	store     string
	sessions  string
	federated bool
}

// NewInfoHandler describes the running configuration: the record store
// kind, the session store kind and whether federated sign-in is enabled.
func NewInfoHandler(store, sessions string, federated bool) *InfoHandler {
	return &InfoHandler{store: store, sessions: sessions, federated: federated}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	Store    string   `json:"store" doc:"Record store backend" enum:"duckdb,mongo,memory"`
	Sessions string   `json:"sessions" doc:"Session store backend" enum:"memory,redis"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"areas", "reports", "nearby", "geojson", "mvt"}
	if h.federated {
		features = append(features, "federated-sign-in")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "smokesearch",
		Version:  Version,
		Store:    h.store,
		Sessions: h.sessions,
		Features: features,
	}}, nil
}
