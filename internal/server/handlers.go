package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strconv"

	"github.com/ironsheep/receipt-extractor/internal/detection"
	"github.com/ironsheep/receipt-extractor/internal/imaging"
	"github.com/ironsheep/receipt-extractor/internal/ocr"
	"github.com/ironsheep/receipt-extractor/internal/pipeline"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "receipt_extract").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.Warnf("tool %s failed: %v", params.Name, err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "receipt_extract":
		return s.handleExtract(ctx, args)
	case "receipt_detect_regions":
		return s.handleDetectRegions(ctx, args)
	case "receipt_ocr_region":
		return s.handleOCRRegion(ctx, args)
	case "receipt_parse_text":
		return s.handleParseText(args)
	case "receipt_forget":
		return s.handleForget(args)
	case "receipt_status":
		return s.svc.Status(), nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, treating missing arguments as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}

type pathArgs struct {
	Path string `json:"path"`
}

func (a pathArgs) validate() error {
	if a.Path == "" {
		return errors.New("path is required")
	}
	return nil
}

func (s *Server) load(a pathArgs) (*imaging.Loaded, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	return s.cache.Load(a.Path)
}

type forgetResult struct {
	Path      string `json:"path"`
	Forgotten bool   `json:"forgotten"`
	Cached    int    `json:"cached"`
}

// handleForget evicts one image from the cache.
func (s *Server) handleForget(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	forgotten := s.cache.Evict(a.Path)
	return forgetResult{Path: a.Path, Forgotten: forgotten, Cached: s.cache.Len()}, nil
}

// === Pipeline ===

type extractResult struct {
	result *pipeline.Result
	trace  *pipeline.Trace
}

// MarshalJSON writes the result fields with the trace next to them.
func (r extractResult) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(r.result)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	trace, err := json.Marshal(r.trace)
	if err != nil {
		return nil, err
	}
	fields["trace"] = trace
	return json.Marshal(fields)
}

func (s *Server) handleExtract(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	l, err := s.load(a)
	if err != nil {
		return nil, err
	}
	res, trace, err := s.svc.Pipeline().ProcessDetailed(ctx, l.Data)
	if err != nil {
		return nil, err
	}
	return extractResult{result: res, trace: trace}, nil
}

// === Detection ===

type detectRegionsArgs struct {
	Path     string `json:"path"`
	Annotate bool   `json:"annotate"`
	BoxColor string `json:"box_color"`
}

type numberedRegion struct {
	Index int `json:"index"`
	detection.Region
}

type detectRegionsResult struct {
	Width     int                     `json:"width"`
	Height    int                     `json:"height"`
	Regions   []numberedRegion        `json:"regions"`
	Annotated *imaging.AnnotateResult `json:"annotated,omitempty"`
}

func (s *Server) handleDetectRegions(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectRegionsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.BoxColor == "" {
		a.BoxColor = "#FF0000"
	}
	l, err := s.load(pathArgs{Path: a.Path})
	if err != nil {
		return nil, err
	}

	det, err := s.svc.Pipeline().Regions(ctx, l.Data)
	if err != nil {
		return nil, err
	}

	out := &detectRegionsResult{
		Width:   det.Width,
		Height:  det.Height,
		Regions: make([]numberedRegion, len(det.Regions)),
	}
	boxes := make([]imaging.Box, len(det.Regions))
	for i, r := range det.Regions {
		out.Regions[i] = numberedRegion{Index: i + 1, Region: r}
		boxes[i] = imaging.Box{Rect: r.Box.Rect(), Label: strconv.Itoa(i + 1)}
	}

	if a.Annotate {
		ann, err := imaging.Annotate(l.Image, boxes, a.BoxColor)
		if err != nil {
			return nil, err
		}
		out.Annotated = ann
	}
	return out, nil
}

// === OCR ===

type ocrRegionArgs struct {
	Path string `json:"path"`
	X1   int    `json:"x1"`
	Y1   int    `json:"y1"`
	X2   int    `json:"x2"`
	Y2   int    `json:"y2"`
}

type ocrRegionResult struct {
	Region detection.Box `json:"region"`
	Text   string        `json:"text"`
	Words  []ocr.Word    `json:"words,omitempty"`
}

type detailedRecognizer interface {
	RecognizeDetailed(ctx context.Context, img image.Image) (*ocr.Result, error)
}

func (s *Server) handleOCRRegion(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a ocrRegionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	l, err := s.load(pathArgs{Path: a.Path})
	if err != nil {
		return nil, err
	}

	r := image.Rect(a.X1, a.Y1, a.X2, a.Y2)
	crop, ok := imaging.CropRegion(l.Image, r)
	if !ok {
		return nil, fmt.Errorf("region (%d,%d)-(%d,%d) is empty inside the %dx%d image",
			a.X1, a.Y1, a.X2, a.Y2, l.Image.Bounds().Dx(), l.Image.Bounds().Dy())
	}
	out := &ocrRegionResult{Region: detection.BoxFromRect(imaging.Clamp(r, l.Image.Bounds()))}

	rec := s.svc.Recognizer()
	if d, ok := rec.(detailedRecognizer); ok {
		res, err := d.RecognizeDetailed(ctx, crop)
		if err != nil {
			return nil, err
		}
		out.Text, out.Words = res.Text, res.Words
		return out, nil
	}
	text, err := rec.Recognize(ctx, crop)
	if err != nil {
		return nil, err
	}
	out.Text = text
	return out, nil
}

// === Normalization ===

type parseTextArgs struct {
	Text string `json:"text"`
}

type parseTextResult struct {
	Date      *string     `json:"date"`
	Amount    json.Number `json:"amount"`
	DateFound bool        `json:"date_found"`
}

func (s *Server) handleParseText(args json.RawMessage) (interface{}, error) {
	var a parseTextArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	date, ok, amount := s.svc.Pipeline().Text(a.Text)
	out := &parseTextResult{Amount: json.Number(amount.StringFixed(2)), DateFound: ok}
	if ok {
		out.Date = &date
	}
	return out, nil
}
