package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// acquireRequest mirrors the racefetch acquire request.
type acquireRequest struct {
	URL          string `json:"url"`
	Gate         string `json:"gate,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	ExtractMode  string `json:"extract_mode,omitempty"`
	CSSSelector  string `json:"css_selector,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// acquireResponse mirrors the racefetch acquire response.
type acquireResponse struct {
	Success  bool   `json:"success"`
	Strategy string `json:"strategy"`
	Content  string `json:"content"`
	Attempts []struct {
		Strategy string `json:"strategy"`
		Outcome  string `json:"outcome"`
		Reason   string `json:"reason"`
	} `json:"attempts"`
	Error *apiError `json:"error"`
}

// mapResponse mirrors the racefetch map response.
type mapResponse struct {
	Success bool      `json:"success"`
	URLs    []string  `json:"urls"`
	Total   int       `json:"total"`
	Source  string    `json:"source"`
	Error   *apiError `json:"error"`
}

func main() {
	apiURL := os.Getenv("RACEFETCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("RACEFETCH_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "RACEFETCH_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"racefetch",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	acquireTool := mcp.NewTool("acquire_document",
		mcp.WithDescription("Fetch a document by racing several retrieval strategies (direct, proxy, relays, headless browser) and return the first response that passes the chosen validation gate."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the document to acquire"),
		),
		mcp.WithString("gate",
			mcp.Description("What counts as the right document: 'html' (default), 'article', 'sitemap', 'robots', 'json', 'llms' or 'any'"),
			mcp.Enum("html", "article", "sitemap", "robots", "json", "llms", "any"),
		),
		mcp.WithString("output_format",
			mcp.Description("Output format: 'raw' (default) or 'markdown'"),
			mcp.Enum("raw", "markdown"),
		),
		mcp.WithString("extract_mode",
			mcp.Description("Extraction: 'raw' (default, full page) or 'readability' (main article only)"),
			mcp.Enum("raw", "readability"),
		),
		mcp.WithString("css_selector",
			mcp.Description("Optional CSS selector; only matching elements are kept"),
		),
	)
	s.AddTool(acquireTool, handleAcquire(apiURL, apiKey))

	mapTool := mcp.NewTool("map_site",
		mcp.WithDescription("Discover the URLs of a site from its sitemaps, falling back to the links on its home page."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Any URL on the site to map"),
		),
	)
	s.AddTool(mapTool, handleMap(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func handleAcquire(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 150 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/acquire", acquireRequest{
			URL:          url,
			Gate:         request.GetString("gate", ""),
			OutputFormat: request.GetString("output_format", ""),
			ExtractMode:  request.GetString("extract_mode", ""),
			CSSSelector:  request.GetString("css_selector", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp acquireResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(formatFailure(resp)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Strategy: %s\nSource: %s\n\n%s", resp.Strategy, url, resp.Content)), nil
	}
}

// formatFailure renders the error and every strategy's reason.
func formatFailure(resp acquireResponse) string {
	var b strings.Builder
	if resp.Error != nil {
		fmt.Fprintf(&b, "[%s] %s", resp.Error.Code, resp.Error.Message)
	} else {
		b.WriteString("acquire failed")
	}
	for _, a := range resp.Attempts {
		fmt.Fprintf(&b, "\n- %s: %s", a.Strategy, a.Outcome)
		if a.Reason != "" {
			fmt.Fprintf(&b, " (%s)", a.Reason)
		}
	}
	return b.String()
}

func handleMap(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 150 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/map", map[string]string{"url": url})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp mapResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			msg := "map failed"
			if resp.Error != nil {
				msg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}

		result := fmt.Sprintf("Found %d URLs (from %s):\n%s", resp.Total, resp.Source, strings.Join(resp.URLs, "\n"))
		return mcp.NewToolResultText(result), nil
	}
}

// apiPost sends a JSON POST request to the racefetch API and returns the body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}
