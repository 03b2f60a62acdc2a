package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/idempotency"
	memoryrepo "github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

type testEnv struct {
	router chi.Router
	store  *memorystorage.Backend
}

func setupMediaHandlerTest(t *testing.T, opts ...HandlerOption) *testEnv {
	t.Helper()
	store := memorystorage.New()
	service, err := simplemedia.New(
		simplemedia.WithRepository(memoryrepo.New()),
		simplemedia.WithBlobStore("memory", store),
	)
	require.NoError(t, err)

	handler := NewMediaHandler(service, opts...)
	router := chi.NewRouter()
	router.Mount("/api/v1/media", handler.Routes())
	return &testEnv{router: router, store: store}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type uploadForm struct {
	fileName    string
	contentType string
	data        []byte
	noFile      bool
	fields      map[string]string
}

func (f uploadForm) request(t *testing.T) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(f.fields))
	for k := range f.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		require.NoError(t, w.WriteField(k, f.fields[k]))
	}
	if !f.noFile {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+f.fileName+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func entityFields(entityType, entityID string) map[string]string {
	return map[string]string{"entity_type": entityType, "entity_id": entityID}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeUpload(t *testing.T, w *httptest.ResponseRecorder) UploadResponse {
	t.Helper()
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error
}

func TestMediaHandler_Upload_DedupFlow(t *testing.T) {
	env := setupMediaHandlerTest(t)
	data := pngBytes(t, 3, 2)

	first := env.do(uploadForm{fileName: "a.png", data: data, fields: entityFields("product", "5")}.request(t))
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := decodeUpload(t, first)
	assert.Equal(t, "created", created.Outcome)
	assert.Equal(t, "file uploaded", created.Message)
	assert.Equal(t, "/api/v1/media/"+created.FileID+"/content", created.URL)
	assert.Len(t, created.ContentHash, 64)
	require.NotNil(t, created.Media.Image)
	assert.Equal(t, 3, created.Media.Image.Width)
	assert.Equal(t, 2, created.Media.Image.Height)

	again := env.do(uploadForm{fileName: "a.png", data: data, fields: entityFields("product", "5")}.request(t))
	require.Equal(t, http.StatusOK, again.Code)
	dup := decodeUpload(t, again)
	assert.Equal(t, "duplicate", dup.Outcome)
	assert.Equal(t, created.FileID, dup.FileID)

	other := env.do(uploadForm{fileName: "copy.png", data: data, fields: entityFields("product", "7")}.request(t))
	require.Equal(t, http.StatusCreated, other.Code)
	assoc := decodeUpload(t, other)
	assert.Equal(t, "associated", assoc.Outcome)
	assert.NotEqual(t, created.FileID, assoc.FileID)
	assert.Equal(t, created.ContentHash, assoc.ContentHash)

	assert.Equal(t, 1, env.store.Writes())
}

func TestMediaHandler_Upload_Rejections(t *testing.T) {
	env := setupMediaHandlerTest(t)

	t.Run("EmptyFile", func(t *testing.T) {
		w := env.do(uploadForm{fileName: "a.png", data: nil, fields: entityFields("product", "5")}.request(t))
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, CodeValidationFailed, body.Code)
		assert.Contains(t, w.Body.String(), "file is empty")
	})

	t.Run("MissingFile", func(t *testing.T) {
		w := env.do(uploadForm{noFile: true, fields: entityFields("product", "5")}.request(t))
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "file is required")
	})

	t.Run("DisallowedType", func(t *testing.T) {
		w := env.do(uploadForm{fileName: "notes.txt", contentType: "text/plain", data: []byte("hello"), fields: entityFields("product", "5")}.request(t))
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), `not allowed`)
	})

	t.Run("MissingEntity", func(t *testing.T) {
		w := env.do(uploadForm{fileName: "a.png", data: pngBytes(t, 1, 1)}.request(t))
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "entity_type is required")
		assert.Contains(t, w.Body.String(), "entity_id must be greater than 0")
	})

	t.Run("BadEntityID", func(t *testing.T) {
		w := env.do(uploadForm{fileName: "a.png", data: pngBytes(t, 1, 1), fields: entityFields("product", "five")}.request(t))
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeBadRequest, decodeError(t, w).Code)
	})

	t.Run("NotMultipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/media/", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	assert.Equal(t, 0, env.store.Writes())
}

func TestMediaHandler_Upload_BodyTooLarge(t *testing.T) {
	env := setupMediaHandlerTest(t, WithMaxUploadBytes(10))
	data := bytes.Repeat([]byte{0x89}, multipartOverhead+100)

	w := env.do(uploadForm{fileName: "a.png", data: data, fields: entityFields("product", "5")}.request(t))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, CodePayloadTooLarge, decodeError(t, w).Code)
}

func TestMediaHandler_ReadAndLifecycle(t *testing.T) {
	env := setupMediaHandlerTest(t)
	data := pngBytes(t, 4, 4)

	upload := decodeUpload(t, env.do(uploadForm{fileName: "a.png", data: data, fields: map[string]string{
		"entity_type": "product", "entity_id": "9", "sort_order": "1", "primary": "true",
	}}.request(t)))
	second := decodeUpload(t, env.do(uploadForm{fileName: "b.png", data: pngBytes(t, 5, 5), fields: map[string]string{
		"entity_type": "product", "entity_id": "9", "sort_order": "0",
	}}.request(t)))
	base := "/api/v1/media/"

	t.Run("Get", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, base+upload.FileID, nil))
		require.Equal(t, http.StatusOK, w.Code)
		var m MediaResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.Equal(t, "image/png", m.MimeType)
		assert.True(t, m.Primary)
		assert.Equal(t, int64(len(data)), m.SizeBytes)
	})

	t.Run("Content", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, base+upload.FileID+"/content", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, data, w.Body.Bytes())
		assert.Contains(t, w.Header().Get("Content-Disposition"), "a.png")

		req := httptest.NewRequest(http.MethodGet, base+upload.FileID+"/content", nil)
		req.Header.Set("If-None-Match", `"`+upload.ContentHash+`"`)
		assert.Equal(t, http.StatusNotModified, env.do(req).Code)
	})

	t.Run("List", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, base+"?entity_type=product&entity_id=9", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var items []MediaResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
		require.Len(t, items, 2)
		assert.Equal(t, second.FileID, items[0].ID)
		assert.Equal(t, upload.FileID, items[1].ID)
	})

	t.Run("ListValidation", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, base+"?entity_type=product", nil))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		w = env.do(httptest.NewRequest(http.MethodGet, base+"?entity_type=product&entity_id=x", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("DeactivateAndActivate", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodPost, base+second.FileID+"/deactivate", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var m MediaResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.False(t, m.Active)

		w = env.do(httptest.NewRequest(http.MethodGet, base+"?entity_type=product&entity_id=9", nil))
		var items []MediaResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
		assert.Len(t, items, 1)

		w = env.do(httptest.NewRequest(http.MethodGet, base+"?entity_type=product&entity_id=9&include_inactive=true", nil))
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
		assert.Len(t, items, 2)

		w = env.do(httptest.NewRequest(http.MethodPost, base+second.FileID+"/activate", nil))
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
		assert.True(t, m.Active)
	})

	t.Run("Delete", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodDelete, base+upload.FileID, nil))
		require.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(httptest.NewRequest(http.MethodGet, base+upload.FileID, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, CodeNotFound, decodeError(t, w).Code)

		w = env.do(httptest.NewRequest(http.MethodDelete, base+upload.FileID, nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("BadAndUnknownIDs", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(httptest.NewRequest(http.MethodGet, base+"not-a-uuid", nil)).Code)
		assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, base+uuid.NewString()+"/content", nil)).Code)
	})
}

func TestMediaHandler_Idempotency(t *testing.T) {
	env := setupMediaHandlerTest(t, WithIdempotencyStore(idempotency.NewMemoryStore(), 0))
	data := pngBytes(t, 2, 2)

	form := uploadForm{fileName: "a.png", data: data, fields: map[string]string{
		"entity_type": "product", "entity_id": "5", "request_id": "req-1",
	}}

	first := env.do(form.request(t))
	require.Equal(t, http.StatusCreated, first.Code)

	replay := env.do(form.request(t))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, decodeUpload(t, first).FileID, decodeUpload(t, replay).FileID)

	changed := form
	changed.data = pngBytes(t, 3, 3)
	conflict := env.do(changed.request(t))
	assert.Equal(t, http.StatusConflict, conflict.Code)
	assert.Equal(t, CodeIdempotencyConflict, decodeError(t, conflict).Code)

	assert.Equal(t, 1, env.store.Writes())
}

func TestDeclaredContentType(t *testing.T) {
	tests := []struct {
		partType string
		filename string
		want     string
	}{
		{"image/png", "a.bin", "image/png"},
		{"IMAGE/JPEG; charset=binary", "a.png", "image/jpeg"},
		{"", "a.png", "image/png"},
		{"application/octet-stream", "a.webp", "image/webp"},
		{"application/octet-stream", "clip.mp4", ""},
		{"", "noext", ""},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, declaredContentType(tt.partType, tt.filename))
		})
	}
}
