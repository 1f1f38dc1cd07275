package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/claude/utegym/internal/gateway"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) recentWorkouts(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	end := time.Now()
	workouts, err := h.ds.ListWorkouts(ctx, gateway.WorkoutFilter{
		UserID: UserIDFromContext(ctx),
		Start:  end.AddDate(0, 0, -14),
		End:    end,
	})
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, workouts)
}

func (h *handlers) methodCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	methods, err := h.ds.ListMethods(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, methods)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
