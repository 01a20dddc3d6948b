package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printview/internal/config"
	"printview/internal/files"
	"printview/internal/layercache"
	"printview/internal/thumbcache"
)

type Handlers struct {
	config     *config.Config
	logger     *zap.Logger
	files      *files.Store
	layerCache *layercache.Cache
	thumbCache *thumbcache.Cache
	fetcher    layercache.Fetcher
}

func New(config *config.Config, logger *zap.Logger, fileStore *files.Store, layerCache *layercache.Cache, thumbCache *thumbcache.Cache, fetcher layercache.Fetcher) *Handlers {
	return &Handlers{
		config:     config,
		logger:     logger,
		files:      fileStore,
		layerCache: layerCache,
		thumbCache: thumbCache,
		fetcher:    fetcher,
	}
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", wrapped.bytesWritten),
			zap.Int64("duration_ms", duration.Milliseconds()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else if origin == "" {
			allowedOrigin = "*"
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleFiles serves the file-browser listing, rescanning local storage on
// every call so the touchscreen sees newly copied files.
func (h *Handlers) HandleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.files.Scan(); err != nil {
		h.logger.Warn("file scan failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.files.List())
}

// HandlePlateRoutes dispatches /api/plates/{plate}/layers/{layer}/preview.
func (h *Handlers) HandlePlateRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/plates/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) != 4 || parts[1] != "layers" || parts[3] != "preview" {
		http.NotFound(w, r)
		return
	}

	var plateID, layer int
	if _, err := fmt.Sscanf(parts[0], "%d", &plateID); err != nil {
		http.Error(w, "Invalid plate id", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &layer); err != nil {
		http.Error(w, "Invalid layer", http.StatusBadRequest)
		return
	}
	if plateID < 0 || layer < 0 {
		http.Error(w, "Plate and layer must be non-negative", http.StatusBadRequest)
		return
	}

	h.handleLayerPreview(w, r, plateID, layer)
}

func (h *Handlers) handleLayerPreview(w http.ResponseWriter, r *http.Request, plateID, layer int) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := h.layerCache.FetchAndCache(r.Context(), h.fetcher, plateID, layer)
	if err != nil {
		h.logger.Debug("layer preview fetch failed",
			zap.Int("plate_id", plateID),
			zap.Int("layer", layer),
			zap.Error(err),
		)
		http.Error(w, "Preview unavailable", http.StatusBadGateway)
		return
	}

	// Browsing tends to move forward; warm the next layers.
	h.layerCache.Preload(h.fetcher, plateID, layer, 2)

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleThumbnail serves file-browser thumbnails through the two-tier cache.
func (h *Handlers) HandleThumbnail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	location := q.Get("location")
	fileName := q.Get("filename")
	if location == "" || fileName == "" {
		http.Error(w, "location and filename are required", http.StatusBadRequest)
		return
	}

	size := thumbcache.SizeSmall
	if q.Get("size") == string(thumbcache.SizeLarge) {
		size = thumbcache.SizeLarge
	}

	subdirectory := q.Get("subdirectory")

	lastModified := int64(0)
	if location == "local" {
		lastModified = h.files.LastModified(subdirectory, fileName)
	}

	data, ok := h.thumbCache.GetThumbnail(r.Context(), thumbcache.Request{
		Location:     location,
		Subdirectory: subdirectory,
		FileName:     fileName,
		LastModified: lastModified,
		Size:         size,
		ForceRefresh: q.Get("refresh") == "1",
	})
	if !ok {
		http.Error(w, "No thumbnail available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleCacheClear clears cache state: a specific location, the disk tier,
// everything, or just memory when no parameter is given.
func (h *Handlers) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("location") != "":
		h.thumbCache.ClearLocation(q.Get("location"))
	case q.Get("scope") == "disk":
		h.thumbCache.ClearDisk()
	case q.Get("scope") == "all":
		h.thumbCache.ClearAll()
		h.layerCache.Clear()
	default:
		h.thumbCache.Clear()
		h.layerCache.Clear()
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCacheInfo exposes the disk cache directory for diagnostics.
func (h *Handlers) HandleCacheInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"disk_cache_dir": h.thumbCache.DiskCacheDir(),
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
