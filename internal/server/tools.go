package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the receipt image (JPEG or PNG)",
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "receipt_extract",
			Description: "Run the full extraction pipeline on a receipt photo and return its date (YYYY-MM-DD), total amount and spending category, plus a trace of every region read.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "receipt_detect_regions",
			Description: "Detect semantic regions (item-list, merchant-name, address, date, invoice, payment-info, price, sum, tax-info) on a receipt. Optionally returns the image with numbered boxes drawn over it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"annotate": map[string]interface{}{
						"type":        "boolean",
						"description": "Return a base64 PNG with the region boxes drawn. Default false",
						"default":     false,
					},
					"box_color": map[string]interface{}{
						"type":        "string",
						"description": "Box color as #RRGGBB or #RRGGBBAA. Default #FF0000",
						"default":     "#FF0000",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "receipt_ocr_region",
			Description: "Read the text of one rectangle of a receipt. Use it to re-check a region reported by receipt_detect_regions.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"x1": map[string]interface{}{
						"type":        "integer",
						"description": "Left edge X coordinate (0-based)",
					},
					"y1": map[string]interface{}{
						"type":        "integer",
						"description": "Top edge Y coordinate (0-based)",
					},
					"x2": map[string]interface{}{
						"type":        "integer",
						"description": "Right edge X coordinate (exclusive)",
					},
					"y2": map[string]interface{}{
						"type":        "integer",
						"description": "Bottom edge Y coordinate (exclusive)",
					},
				},
				"required": []string{"path", "x1", "y1", "x2", "y2"},
			},
		},
		{
			Name:        "receipt_parse_text",
			Description: "Find the date and the total amount in free receipt text using the same rules as the pipeline fallback. No image is needed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{
						"type":        "string",
						"description": "Receipt text, newlines allowed",
					},
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        "receipt_forget",
			Description: "Drop a receipt image from the server's cache, for example after the file changed on disk.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "receipt_status",
			Description: "Report the configured detector, classifier labels and OCR engine.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
