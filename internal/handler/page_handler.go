package handler

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/fakhrymubarak/weather-widget/internal/config"
	"github.com/fakhrymubarak/weather-widget/internal/document"
	"github.com/fakhrymubarak/weather-widget/internal/model"
	"github.com/fakhrymubarak/weather-widget/internal/redis"
	"github.com/fakhrymubarak/weather-widget/internal/service"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// DocumentStore creates and reopens rendered pages.
type DocumentStore interface {
	Create(ctx context.Context, mountIDs ...string) (*document.Document, error)
	Open(ctx context.Context, id string) (*document.Document, error)
}

type PageHandler struct {
	Fetcher service.WeatherFetcherInterface
	Store   DocumentStore
	Redis   redisv9.Cmdable
	MountID string
	Logger  *zap.SugaredLogger
}

func NewPageHandler(fetcher service.WeatherFetcherInterface, store DocumentStore, rdb redisv9.Cmdable) *PageHandler {
	return &PageHandler{
		Fetcher: fetcher,
		Store:   store,
		Redis:   rdb,
		MountID: config.GetMountID(),
		Logger:  config.GetLogger(),
	}
}

type pageData struct {
	MountID    string
	DocumentID string
	Children   []model.Node
	RenderedAt time.Time
}

func (h *PageHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Errorw("could not encode json", "error", err)
	}
}

func (h *PageHandler) methodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", http.MethodGet)
	h.writeJSONResponse(w, http.StatusMethodNotAllowed, model.ErrorResponse("Method not allowed", "Error"))
}

// HandleIndex is a page load: a fresh document, one widget run, then the HTML.
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	doc, err := h.Store.Create(ctx, h.MountID)
	if err != nil {
		h.Logger.Errorw("could not create page document", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.Fetcher.Run(ctx, doc)
	h.render(ctx, w, doc)
}

// HandlePage re-renders a stored document without running the widget again.
func (h *PageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	ctx := r.Context()
	doc, err := h.Store.Open(ctx, r.PathValue("id"))
	if errors.Is(err, document.ErrDocumentNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.Logger.Errorw("could not open page document", "id", r.PathValue("id"), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.render(ctx, w, doc)
}

func (h *PageHandler) render(ctx context.Context, w http.ResponseWriter, doc *document.Document) {
	nodes, err := doc.Children(ctx, h.MountID)
	if err != nil {
		h.Logger.Errorw("could not read mount element", "document", doc.ID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	renderedAt, err := doc.CreatedAt(ctx)
	if err != nil {
		renderedAt = time.Now().UTC()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Document-ID", doc.ID)
	err = templates.ExecuteTemplate(w, "index.html", pageData{
		MountID:    h.MountID,
		DocumentID: doc.ID,
		Children:   nodes,
		RenderedAt: renderedAt,
	})
	if err != nil {
		h.Logger.Errorw("error executing template", "error", err)
	}
}

// HandleHealth reports whether the document store is reachable.
func (h *PageHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.Redis == nil {
		status, code = "no_redis", http.StatusServiceUnavailable
	} else if err := redis.Ping(r.Context(), h.Redis); err != nil {
		h.Logger.Warnw("redis ping failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, code, map[string]string{"status": status})
}
