package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerResources(srv *server.MCPServer, svc *Service) {
	registerDashboardResource(srv, svc)
	registerOrderTemplate(srv, svc)
	registerQueryTemplate(srv, svc)
}

func registerDashboardResource(srv *server.MCPServer, svc *Service) {
	resource := mcp.NewResource(
		"shopdesk://dashboard",
		"Dashboard",
		mcp.WithResourceDescription("Current record counts shown on the console dashboard."),
		mcp.WithMIMEType("application/json"),
	)

	srv.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		counts, err := svc.Dashboard(ctx)
		if err != nil {
			return nil, err
		}
		return encodeResourceJSON(request.Params.URI, counts)
	})
}

func registerOrderTemplate(srv *server.MCPServer, svc *Service) {
	template := mcp.NewResourceTemplate(
		"shopdesk://orders/{id}",
		"Order Details",
		mcp.WithTemplateDescription("A single successful order."),
		mcp.WithTemplateMIMEType("application/json"),
	)

	srv.AddResourceTemplate(template, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id := argument(request, "id")
		if id == "" {
			return nil, fmt.Errorf("order id is required")
		}

		order, err := svc.order(ctx, id)
		if err != nil {
			return nil, err
		}
		return encodeResourceJSON(request.Params.URI, map[string]any{
			"order": toOrderDTO(order),
		})
	})
}

func registerQueryTemplate(srv *server.MCPServer, svc *Service) {
	template := mcp.NewResourceTemplate(
		"shopdesk://queries/{source}/{id}",
		"Contact Query",
		mcp.WithTemplateDescription("A single contact query from the web or mobile form."),
		mcp.WithTemplateMIMEType("application/json"),
	)

	srv.AddResourceTemplate(template, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id := argument(request, "id")
		if id == "" {
			return nil, fmt.Errorf("query id is required")
		}

		dto, err := svc.QueryByID(ctx, argument(request, "source"), id)
		if err != nil {
			return nil, err
		}
		return encodeResourceJSON(request.Params.URI, map[string]any{
			"query": dto,
		})
	})
}

// argument reads a template variable; matches arrive as a string or a
// single element list depending on the template expansion.
func argument(request mcp.ReadResourceRequest, name string) string {
	switch v := request.Params.Arguments[name].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func encodeResourceJSON(uri string, payload any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(payload)
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
