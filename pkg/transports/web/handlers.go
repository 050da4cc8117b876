package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/harunnryd/agronomist/pkg/classify"
	"github.com/harunnryd/agronomist/pkg/triage"
)

const (
	CodeInvalidForm    triage.ErrorCode = "invalid_form"
	CodeUploadTooLarge triage.ErrorCode = "upload_too_large"
)

// Tips are shown under the form.
var Tips = []string{
	"Good lighting: natural light works best.",
	"Close-up photo: focus on the affected area.",
	"Describe symptoms: brown spots? wilting? insects visible?",
	"Mention timing: when did you first notice this? After rain? Heat wave?",
}

// triageForm is decoded from the multipart values with gorilla/schema.
type triageForm struct {
	Description string   `schema:"description" validate:"max=4000"`
	Lat         *float64 `schema:"lat" validate:"omitempty,latitude"`
	Lon         *float64 `schema:"lon" validate:"omitempty,longitude"`
}

// APIResponse is the JSON body of POST /api/v1/triage.
type APIResponse struct {
	triage.Response
	AudioURL string `json:"audio_url,omitempty"`
}

type pageData struct {
	Crops       []string
	Tips        []string
	Description string
	Result      *APIResponse
	Error       *triage.UserError
}

func (t *Transport) handleIndex(w http.ResponseWriter, r *http.Request) {
	t.render(w, http.StatusOK, pageData{})
}

func (t *Transport) handleForm(w http.ResponseWriter, r *http.Request) {
	res, status := t.process(r)
	data := pageData{Description: res.Description}
	if res.Error != nil {
		data.Error = res.Error
	} else {
		data.Result = &res
	}
	t.render(w, status, data)
}

func (t *Transport) handleAPI(w http.ResponseWriter, r *http.Request) {
	res, status := t.process(r)
	writeJSON(w, status, res)
}

func (t *Transport) handleCrops(w http.ResponseWriter, r *http.Request) {
	crops := make([]string, 0, len(classify.Crops()))
	for _, c := range classify.Crops() {
		crops = append(crops, string(c))
	}
	parts := make([]string, 0, len(classify.PlantParts()))
	for _, p := range classify.PlantParts() {
		parts = append(parts, string(p))
	}
	writeJSON(w, http.StatusOK, map[string][]string{"crops": crops, "plant_parts": parts})
}

func (t *Transport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (t *Transport) handleAudio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ext := strings.ToLower(filepath.Ext(name))
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") || (ext != ".wav" && ext != ".mp3") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(t.cfg.OutputDir, name))
}

// process parses the upload, runs the triager and maps the outcome to an
// HTTP status. The saved image is removed once the request is done.
func (t *Transport) process(r *http.Request) (APIResponse, int) {
	req, cleanup, uerr := t.parse(r)
	defer cleanup()
	if uerr != nil {
		status := http.StatusBadRequest
		if uerr.Code == CodeUploadTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		return APIResponse{Response: triage.Response{Description: req.Description, Error: uerr}}, status
	}

	ctx, cancel := context.WithTimeout(r.Context(), t.cfg.RequestTimeout)
	defer cancel()
	resp := t.triager.HandleRequest(ctx, req)
	out := APIResponse{Response: resp}
	if resp.Error != nil {
		return out, http.StatusUnprocessableEntity
	}
	if resp.AudioPath != "" {
		out.AudioURL = "/audio/" + filepath.Base(resp.AudioPath)
	}
	return out, http.StatusOK
}

func (t *Transport) parse(r *http.Request) (triage.Request, func(), *triage.UserError) {
	cleanup := func() {}
	r.Body = http.MaxBytesReader(nil, r.Body, t.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(t.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return triage.Request{}, cleanup, userError(CodeUploadTooLarge, "The upload is too large. Please send a smaller photo or a shorter recording.")
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return triage.Request{}, cleanup, userError(CodeInvalidForm, "The form could not be read. Please try again.")
		}
		if err := r.ParseForm(); err != nil {
			return triage.Request{}, cleanup, userError(CodeInvalidForm, "The form could not be read. Please try again.")
		}
	}

	var form triageForm
	if err := t.decoder.Decode(&form, r.Form); err != nil {
		return triage.Request{}, cleanup, userError(CodeInvalidForm, "Latitude and longitude must be numbers.")
	}
	req := triage.Request{Description: strings.TrimSpace(form.Description)}
	if err := t.validate.Struct(form); err != nil {
		return req, cleanup, userError(triage.CodeInvalidLocation, "The farm location is not valid. Latitude must be between -90 and 90 and longitude between -180 and 180.")
	}
	if (form.Lat == nil) != (form.Lon == nil) {
		return req, cleanup, userError(triage.CodeInvalidLocation, "Please give both latitude and longitude, or neither.")
	}
	if form.Lat != nil {
		req.Location = &triage.Location{Lat: *form.Lat, Lon: *form.Lon}
	}

	if r.MultipartForm == nil {
		return req, cleanup, nil
	}
	if fh := firstFile(r.MultipartForm, "image"); fh != nil {
		path, err := t.saveUpload(fh)
		if err != nil {
			t.log.Error("saving upload failed", "error", err.Error())
			return req, cleanup, userError(CodeInvalidForm, "The photo could not be saved. Please try again.")
		}
		req.ImagePath = path
		cleanup = func() { _ = os.Remove(path) }
	}
	if fh := firstFile(r.MultipartForm, "audio"); fh != nil {
		data, err := readUpload(fh)
		if err != nil {
			return req, cleanup, userError(CodeInvalidForm, "The recording could not be read. Please try again.")
		}
		req.Audio = data
		req.AudioName = fh.Filename
	}
	return req, cleanup, nil
}

func (t *Transport) saveUpload(fh *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(t.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	path := filepath.Join(t.cfg.UploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	files := form.File[field]
	if len(files) == 0 || files[0].Size == 0 {
		return nil
	}
	return files[0]
}

func userError(code triage.ErrorCode, msg string) *triage.UserError {
	return &triage.UserError{Code: code, Message: msg}
}

func (t *Transport) render(w http.ResponseWriter, status int, data pageData) {
	for _, c := range classify.Crops() {
		data.Crops = append(data.Crops, c.Title())
	}
	data.Tips = Tips
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		t.log.Error("template render failed", "error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
