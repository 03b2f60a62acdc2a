package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/idempotency"
)

// multipartOverhead is the room left for form fields and part headers on top
// of the file size limit, so an oversized file still reaches validation.
const multipartOverhead = 1 << 20

// MediaHandler serves the media upload and retrieval endpoints.
type MediaHandler struct {
	service        simplemedia.Service
	maxUploadBytes int64
	idempotency    idempotency.Store
	idempotencyTTL time.Duration
	log            *logger.Logger
}

// HandlerOption configures a MediaHandler
type HandlerOption func(*MediaHandler)

// WithMaxUploadBytes sets the file size limit enforced by the service, used
// here to cap the request body.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *MediaHandler) {
		h.maxUploadBytes = n
	}
}

// WithIdempotencyStore enables request-id replay on uploads
func WithIdempotencyStore(store idempotency.Store, ttl time.Duration) HandlerOption {
	return func(h *MediaHandler) {
		h.idempotency = store
		h.idempotencyTTL = ttl
	}
}

func WithLogger(log *logger.Logger) HandlerOption {
	return func(h *MediaHandler) {
		h.log = log
	}
}

func NewMediaHandler(service simplemedia.Service, opts ...HandlerOption) *MediaHandler {
	h := &MediaHandler{
		service:        service,
		maxUploadBytes: simplemedia.DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logger.Nop()
	}
	return h
}

// Routes returns the router for media endpoints
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(
		LimitBody(h.maxUploadBytes+multipartOverhead),
		Idempotency(h.idempotency, h.idempotencyTTL, h.log),
	).Post("/", h.Upload)
	r.Get("/", h.List)
	r.Get("/{media_id}", h.Get)
	r.Get("/{media_id}/content", h.Content)
	r.Post("/{media_id}/activate", h.Activate)
	r.Post("/{media_id}/deactivate", h.Deactivate)
	r.Delete("/{media_id}", h.Delete)
	return r
}

// UploadResponse is returned by a successful upload
type UploadResponse struct {
	FileID      string         `json:"file_id"`
	URL         string         `json:"url"`
	Message     string         `json:"message"`
	Outcome     string         `json:"outcome"`
	ContentHash string         `json:"content_hash"`
	Media       *MediaResponse `json:"media"`
}

// MediaResponse is the JSON form of a record
type MediaResponse struct {
	ID          string             `json:"id"`
	URL         string             `json:"url"`
	ContentHash string             `json:"content_hash"`
	MimeType    string             `json:"mime_type"`
	SizeBytes   int64              `json:"size_bytes"`
	FileName    string             `json:"file_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    int64              `json:"entity_id"`
	SortOrder   int                `json:"sort_order"`
	Primary     bool               `json:"primary"`
	Active      bool               `json:"active"`
	UploadedBy  string             `json:"uploaded_by,omitempty"`
	Image       *simplemedia.Image `json:"image,omitempty"`
	Video       *simplemedia.Video `json:"video,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

func toMediaResponse(m *simplemedia.Media, url string) *MediaResponse {
	return &MediaResponse{
		ID:          m.ID.String(),
		URL:         url,
		ContentHash: m.ContentHash,
		MimeType:    m.MimeType,
		SizeBytes:   m.SizeBytes,
		FileName:    m.FileName,
		EntityType:  m.EntityType,
		EntityID:    m.EntityID,
		SortOrder:   m.SortOrder,
		Primary:     m.Primary,
		Active:      m.Active,
		UploadedBy:  m.UploadedBy,
		Image:       m.Image,
		Video:       m.Video,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// Upload accepts a multipart form with the file and its owning entity.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeBodyReadError(w, r, err)
			return
		}
		writeBadRequest(w, r, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	entityID, err := parseOptionalInt64(r.FormValue("entity_id"))
	if err != nil {
		writeBadRequest(w, r, "entity_id must be an integer")
		return
	}
	sortOrder, err := parseOptionalInt64(r.FormValue("sort_order"))
	if err != nil {
		writeBadRequest(w, r, "sort_order must be an integer")
		return
	}
	primary, err := parseOptionalBool(r.FormValue("primary"))
	if err != nil {
		writeBadRequest(w, r, "primary must be a boolean")
		return
	}

	req := simplemedia.UploadRequest{
		EntityType: strings.TrimSpace(r.FormValue("entity_type")),
		EntityID:   entityID,
		SortOrder:  int(sortOrder),
		Primary:    primary,
		RequestID:  requestIDFor(r),
		UploadedBy: UploaderFromContext(r.Context()),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		writeError(w, r, h.log, &simplemedia.Error{
			Kind:       simplemedia.KindValidationFailed,
			Op:         "upload",
			Violations: []string{"file is required"},
		})
		return
	case err != nil:
		writeBadRequest(w, r, "invalid file part")
		return
	}
	defer file.Close()

	req.Data, err = io.ReadAll(file)
	if err != nil {
		writeBodyReadError(w, r, err)
		return
	}
	req.FileName = header.Filename
	req.ContentType = declaredContentType(header.Header.Get("Content-Type"), header.Filename)

	result, err := h.service.Upload(r.Context(), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == simplemedia.OutcomeDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, r, status, UploadResponse{
		FileID:      result.Media.ID.String(),
		URL:         result.URL,
		Message:     result.Message,
		Outcome:     string(result.Outcome),
		ContentHash: result.Media.ContentHash,
		Media:       toMediaResponse(result.Media, result.URL),
	})
}

// Get returns one record
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.mediaID(w, r)
	if !ok {
		return
	}
	media, err := h.service.GetMedia(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.writeMedia(w, r, media)
}

// Content streams the stored bytes
func (h *MediaHandler) Content(w http.ResponseWriter, r *http.Request) {
	id, ok := h.mediaID(w, r)
	if !ok {
		return
	}
	reader, media, err := h.service.Download(r.Context(), id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	defer reader.Close()

	w.Header().Set("ETag", `"`+media.ContentHash+`"`)
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, media.ContentHash) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", media.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(media.SizeBytes, 10))
	if media.FileName != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": media.FileName}))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, reader); err != nil {
		h.log.Error(r.Context(), "stream media content", err)
	}
}

// List returns the records of one entity
func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entityID, err := parseOptionalInt64(q.Get("entity_id"))
	if err != nil {
		writeBadRequest(w, r, "entity_id must be an integer")
		return
	}
	includeInactive, err := parseOptionalBool(q.Get("include_inactive"))
	if err != nil {
		writeBadRequest(w, r, "include_inactive must be a boolean")
		return
	}

	items, err := h.service.ListMedia(r.Context(), simplemedia.ListMediaRequest{
		EntityType:      strings.TrimSpace(q.Get("entity_type")),
		EntityID:        entityID,
		IncludeInactive: includeInactive,
	})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resp := make([]*MediaResponse, 0, len(items))
	for _, m := range items {
		url, err := h.service.GetURL(r.Context(), m)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		resp = append(resp, toMediaResponse(m, url))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *MediaHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *MediaHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *MediaHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := h.mediaID(w, r)
	if !ok {
		return
	}
	media, err := h.service.SetActive(r.Context(), id, active)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.writeMedia(w, r, media)
}

// Delete soft deletes a record
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.mediaID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteMedia(r.Context(), id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MediaHandler) writeMedia(w http.ResponseWriter, r *http.Request, media *simplemedia.Media) {
	url, err := h.service.GetURL(r.Context(), media)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toMediaResponse(media, url))
}

func (h *MediaHandler) mediaID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "media_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid media id %q", raw))
		return uuid.Nil, false
	}
	return id, true
}

// declaredContentType is the part's Content-Type, or the type implied by the
// file extension when the client sent none or a generic one. It is empty when
// neither says anything, which lets validation fall back to sniffing.
func declaredContentType(partType, filename string) string {
	declared := simplemedia.NormalizeContentType(partType)
	if declared != "" && declared != simplemedia.DefaultContentType {
		return declared
	}
	if resolved := simplemedia.ResolveContentType(filename); resolved != simplemedia.DefaultContentType {
		return resolved
	}
	return ""
}

func requestIDFor(r *http.Request) string {
	return resolveRequestID(r.FormValue(idempotency.RequestIDField), r.Header)
}

func parseOptionalInt64(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseOptionalBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
