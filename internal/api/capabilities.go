package api

import (
	"log/slog"
	"net/http"

	"github.com/tripwise/tripwise/internal/tools"
)

// capabilityItem is one entry of GET /api/v1/capabilities. Parameter
// schemas stay internal; clients only need to know what exists.
type capabilityItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// capabilitiesHandler exposes the capability catalog for operator tooling.
type capabilitiesHandler struct {
	registry *tools.Registry
	logger   *slog.Logger
}

func (h *capabilitiesHandler) list(w http.ResponseWriter, _ *http.Request) {
	defs := h.registry.All()
	items := make([]capabilityItem, 0, len(defs))
	for _, def := range defs {
		items = append(items, capabilityItem{
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"capabilities": items,
		"count":        len(items),
	}, h.logger)
}
