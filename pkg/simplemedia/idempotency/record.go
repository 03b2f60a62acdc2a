package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// RequestIDField is the multipart form field carrying the caller's request id.
const RequestIDField = "request_id"

// Record is a captured response plus the fingerprint of the request that produced it.
type Record struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// NewRecord captures a response body and content type.
func NewRecord(status int, body []byte, contentType, requestHash string) Record {
	r := Record{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(body),
		RequestHash: requestHash,
	}
	if contentType != "" {
		r.Headers = map[string]string{"Content-Type": contentType}
	}
	return r
}

func (r Record) Encode() (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func DecodeRecord(payload string) (*Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Replay writes the recorded response to w.
func (r *Record) Replay(w http.ResponseWriter) {
	if ct, ok := r.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if decoded, err := base64.StdEncoding.DecodeString(r.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

// Fingerprint hashes a request body. Multipart bodies are hashed part by
// part (field name, file name, bytes) so a new boundary on a retry does not
// change the result. It also returns the request_id form field, if any.
func Fingerprint(contentType string, body []byte) (hash string, requestID string) {
	h := sha256.New()

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		h.Write(body)
		return base64.StdEncoding.EncodeToString(h.Sum(nil)), ""
	}

	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := reader.NextPart()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Unparseable multipart: fall back to the raw bytes.
				h.Reset()
				h.Write(body)
				return base64.StdEncoding.EncodeToString(h.Sum(nil)), ""
			}
			break
		}

		data, readErr := io.ReadAll(part)
		_ = part.Close()
		if readErr != nil {
			h.Reset()
			h.Write(body)
			return base64.StdEncoding.EncodeToString(h.Sum(nil)), ""
		}
		if part.FormName() == RequestIDField && part.FileName() == "" {
			requestID = strings.TrimSpace(string(data))
		}

		h.Write([]byte(part.FormName()))
		h.Write([]byte{0})
		h.Write([]byte(part.FileName()))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), requestID
}
