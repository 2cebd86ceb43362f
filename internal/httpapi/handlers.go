package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/ironsheep/receipt-extractor/internal/app"
	"github.com/ironsheep/receipt-extractor/internal/pipeline"
)

// FileField is the multipart field carrying the receipt image.
const FileField = "file"

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.proc.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r.Context())

	if !s.proc.Ready() {
		writeError(w, http.StatusServiceUnavailable, app.ErrNotReady.Error())
		return
	}

	if r.ContentLength > s.opts.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	file, header, err := r.FormFile(FileField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing multipart field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	ct := contentType(header.Header.Get("Content-Type"), data)
	if !allowedTypes[ct] {
		logger.Infof("rejected upload %q with content type %q", header.Filename, ct)
		writeError(w, http.StatusBadRequest, "Invalid file type. Only JPEG and PNG images are allowed.")
		return
	}

	res, err := s.proc.Process(r.Context(), data)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			logger.Errorf("processing %q failed: %v", header.Filename, err)
		} else {
			logger.Infof("processing %q rejected: %v", header.Filename, err)
		}
		writeError(w, status, err.Error())
		return
	}

	logger.Infof("processed %q (%d bytes): date=%s amount=%s category=%s",
		header.Filename, len(data), res.DateString(), res.Amount.StringFixed(2), res.Category)
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: res})
}

// contentType returns the media type declared for the part, or the sniffed
// one when the declaration is missing or generic.
func contentType(declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return strings.ToLower(mt)
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Status: "error", Data: struct{}{}, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
