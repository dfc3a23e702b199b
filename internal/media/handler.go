package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"snapgram/internal/auth"
	"snapgram/internal/observability"
)

const (
	maxUploadSizeBytes = 10 << 20
)

type Uploader interface {
	Upload(ctx context.Context, source string) (Asset, error)
	Destroy(ctx context.Context, publicID, resourceType string) (string, error)
}

type UploadHandler struct {
	uploader Uploader
	logger   *observability.Logger
}

// NewUploadHandler accepts a nil uploader; the routes then answer 503.
func NewUploadHandler(uploader Uploader, logger *observability.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, logger: logger}
}

func (h *UploadHandler) Mount(mux *http.ServeMux, gate *auth.Gate) {
	mux.Handle("POST /api/upload", gate.Require(http.HandlerFunc(h.Upload)))
	mux.Handle("DELETE /api/upload/delete", gate.Require(http.HandlerFunc(h.Delete)))
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "Media storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSizeBytes+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSizeBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form or file too large")
		return
	}

	file, header, err := r.FormFile("media")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "File is empty")
		return
	}
	if len(data) > maxUploadSizeBytes {
		writeError(w, http.StatusBadRequest, "File is too large")
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		writeError(w, http.StatusBadRequest, "Only images and videos are allowed")
		return
	}

	source := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
	asset, err := h.uploader.Upload(r.Context(), source)
	if err != nil {
		h.logger.Error("media_upload_failed", map[string]any{"error": err})
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "Failed to upload media")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":      "File uploaded successfully",
		"fileUrl":      asset.SecureURL,
		"publicId":     asset.PublicID,
		"resourceType": asset.ResourceType,
		"caption":      r.FormValue("caption"),
	})
}

type deleteRequest struct {
	PublicID     string `json:"publicId"`
	ResourceType string `json:"resourceType"`
}

func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "Media storage is not configured")
		return
	}

	var req deleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.PublicID) == "" {
		writeError(w, http.StatusBadRequest, "publicId is required")
		return
	}

	result, err := h.uploader.Destroy(r.Context(), req.PublicID, req.ResourceType)
	if err != nil {
		h.logger.Error("media_delete_failed", map[string]any{"public_id": req.PublicID, "error": err})
		sentry.CaptureException(err)
		writeError(w, http.StatusBadGateway, "Failed to delete media")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "File deleted successfully",
		"result":  result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
