package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"tableflip.dev/shopdesk/pkg/apperr"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

func registerTools(srv *server.MCPServer, svc *Service) {
	registerListOrdersTool(srv, svc)
	registerChangeOrderStatusTool(srv, svc)
	registerInvoiceURLTool(srv, svc)
	registerListQueriesTool(srv, svc)
	registerReplyQueryTool(srv, svc)
	registerDeleteQueriesTool(srv, svc)
	registerDashboardTool(srv, svc)
}

func listArgs(name string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("search",
			mcp.Description("Case-insensitive text matched against the visible columns."),
		),
		mcp.WithString("sort",
			mcp.Description("Creation time ordering."),
			mcp.Enum("recent", "oldest"),
		),
		mcp.WithNumber("page",
			mcp.Description(fmt.Sprintf("1-based page of %d %s.", viewmodel.PageSize, name)),
			mcp.Min(1),
		),
	}
}

func listOptions(request mcp.CallToolRequest) (ListOptions, error) {
	sort, err := viewmodel.ParseSort(request.GetString("sort", ""))
	if err != nil {
		return ListOptions{}, err
	}
	return ListOptions{
		Collection: request.GetString("source", ""),
		Status:     strings.TrimSpace(request.GetString("status", "")),
		Search:     request.GetString("search", ""),
		Sort:       sort,
		Page:       request.GetInt("page", 1),
	}, nil
}

func registerListOrdersTool(srv *server.MCPServer, svc *Service) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List successful orders, newest first, one page at a time."),
		mcp.WithString("status",
			mcp.Description("Only orders with this status."),
			mcp.Enum("processing", "delivered", "cancelled"),
		),
	}
	tool := mcp.NewTool("list_orders", append(opts, listArgs("orders")...)...)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		o, err := listOptions(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		page, err := svc.ListOrders(ctx, o)
		if err != nil {
			return toolError(err), nil
		}
		return toJSONResult(page)
	})
}

func registerChangeOrderStatusTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"change_order_status",
		mcp.WithDescription("Change the status of an order. Delivered orders are locked; marking an order delivered needs confirm."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Order document identifier."),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("New status."),
			mcp.Enum("processing", "delivered", "cancelled"),
		),
		mcp.WithBoolean("confirm",
			mcp.Description("Set to true to accept an irreversible change."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		status, err := request.RequireString("status")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dto, err := svc.ChangeOrderStatus(ctx, id, status, request.GetBool("confirm", false))
		if err != nil {
			return toolError(err), nil
		}
		return toJSONResult(dto)
	})
}

func registerInvoiceURLTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"invoice_url",
		mcp.WithDescription("Get a short-lived signed download URL for an order's invoice."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Order document identifier."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		u, err := svc.InvoiceURL(ctx, id)
		if err != nil {
			return toolError(err), nil
		}
		return toJSONResult(map[string]string{"id": id, "url": u})
	})
}

func sourceArg() mcp.ToolOption {
	return mcp.WithString("source",
		mcp.Description("Which contact form: web (default) or mobile."),
		mcp.Enum("web", "mobile"),
	)
}

func registerListQueriesTool(srv *server.MCPServer, svc *Service) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List customer contact queries, newest first, one page at a time."),
		sourceArg(),
		mcp.WithString("status",
			mcp.Description("Only queries with this status."),
			mcp.Enum("pending", "replied"),
		),
	}
	tool := mcp.NewTool("list_queries", append(opts, listArgs("queries")...)...)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		o, err := listOptions(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		page, err := svc.ListQueries(ctx, o)
		if err != nil {
			return toolError(err), nil
		}
		return toJSONResult(page)
	})
}

func registerReplyQueryTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"reply_query",
		mcp.WithDescription("Attach an admin reply to a contact query and mark it replied."),
		sourceArg(),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Query document identifier."),
		),
		mcp.WithString("reply",
			mcp.Required(),
			mcp.Description("Reply text."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		reply, err := request.RequireString("reply")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dto, err := svc.ReplyQuery(ctx, request.GetString("source", ""), id, reply)
		if err != nil {
			return toolError(err), nil
		}
		return toJSONResult(dto)
	})
}

func registerDeleteQueriesTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"delete_queries",
		mcp.WithDescription("Soft delete contact queries. Requires confirm."),
		sourceArg(),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Query document identifiers."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("confirm",
			mcp.Description("Must be true; deletion cannot be undone from the console."),
		),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Source  string   `json:"source"`
			IDs     []string `json:"ids"`
			Confirm bool     `json:"confirm"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		n, err := svc.DeleteQueries(ctx, args.Source, args.IDs, args.Confirm)
		if err != nil {
			return toolError(err), nil
		}
		return toJSONResult(map[string]any{
			"deleted": n,
			"ids":     args.IDs,
		})
	})
}

func registerDashboardTool(srv *server.MCPServer, svc *Service) {
	tool := mcp.NewTool(
		"dashboard",
		mcp.WithDescription("Count users, admins, products, orders, failed orders, discount codes and app queries."),
	)

	srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		counts, err := svc.Dashboard(ctx)
		if err != nil {
			return toolError(err), nil
		}
		return toJSONResult(map[string]int{
			"totalUsers":    counts.TotalUsers,
			"adminUsers":    counts.AdminUsers,
			"totalProducts": counts.TotalProducts,
			"successOrders": counts.SuccessOrders,
			"failedOrders":  counts.FailedOrders,
			"discountCodes": counts.DiscountCodes,
			"mobileQueries": counts.MobileQueries,
		})
	})
}

// toolError reports the user-facing message of err.
func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrDeclined) {
		return mcp.NewToolResultError("confirmation required: call again with confirm set to true")
	}
	return mcp.NewToolResultError(apperr.Message(err))
}

func toJSONResult(data any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return result, nil
}
