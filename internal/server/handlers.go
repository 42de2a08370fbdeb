package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maax3v3/brickify/internal/aggregation"
	"github.com/maax3v3/brickify/internal/brick"
	"github.com/maax3v3/brickify/internal/imaging"
	"github.com/maax3v3/brickify/internal/mask"
	"github.com/maax3v3/brickify/internal/palette"
	"github.com/maax3v3/brickify/internal/pipeline"
	"github.com/maax3v3/brickify/internal/store"
)

const (
	defaultGrid      = 64
	buildGuideName   = "build-guide.pdf"
	jsonBodyOverhead = 1 << 20
)

var uploadTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

type uploadResponse struct {
	JobID    string `json:"jobId"`
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageBytes+jsonBodyOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, badRequest("file must be at most %d bytes", s.cfg.MaxImageBytes))
			return
		}
		writeError(w, badRequest("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, badRequest("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxImageBytes+1))
	if err != nil {
		writeError(w, badRequest("reading file: %v", err))
		return
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		writeError(w, badRequest("file must be at most %d bytes", s.cfg.MaxImageBytes))
		return
	}
	if len(data) == 0 {
		writeError(w, badRequest("file is empty"))
		return
	}

	contentType := hdr.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	ext, ok := uploadTypes[contentType]
	if !ok {
		writeError(w, badRequest("only JPG, PNG and WebP images are accepted, got %s", contentType))
		return
	}

	jobID := strings.TrimSpace(r.FormValue("jobId"))
	if jobID == "" {
		jobID = store.NewJobID()
	}
	name := "source." + ext
	if err := s.store.SaveArtifact(r.Context(), jobID, store.File{Name: name, ContentType: contentType, Data: data}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		JobID:    jobID,
		URL:      s.fileURL(r, jobID, name),
		FileName: name,
	})
}

type bomRequest struct {
	PreviewImageURL string          `json:"previewImageUrl"`
	Palette8        []string        `json:"palette8"`
	GridW           int             `json:"gridW"`
	GridH           int             `json:"gridH"`
	Mask64          json.RawMessage `json:"mask64"`
	JobID           string          `json:"jobId"`
	Save            bool            `json:"save"`
}

type bomResponse struct {
	*aggregation.Result
	JobID        string `json:"jobId,omitempty"`
	PreviewURL   string `json:"previewUrl,omitempty"`
	CSVURL       string `json:"csvUrl,omitempty"`
	MaskReplaced bool   `json:"maskReplaced,omitempty"`
}

func (s *Server) computeBOM(w http.ResponseWriter, r *http.Request) {
	var req bomRequest
	if err := decodeJSON(w, r, 2*s.cfg.MaxImageBytes+jsonBodyOverhead, &req); err != nil {
		writeError(w, err)
		return
	}

	// Validate everything before fetching the image.
	if req.PreviewImageURL == "" {
		writeError(w, badRequest("previewImageUrl is required"))
		return
	}
	pal, err := palette.Parse(req.Palette8)
	if err != nil {
		writeError(w, err)
		return
	}
	gridW, gridH := req.GridW, req.GridH
	if gridW == 0 {
		gridW = defaultGrid
	}
	if gridH == 0 {
		gridH = defaultGrid
	}
	if gridW < 0 || gridH < 0 || gridW > s.cfg.MaxGrid || gridH > s.cfg.MaxGrid {
		writeError(w, badRequest("gridW and gridH must be between 1 and %d", s.cfg.MaxGrid))
		return
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID != "" && !store.ValidJobID(jobID) {
		writeError(w, store.ErrInvalidJobID)
		return
	}
	m, _ := mask.FromJSON(req.Mask64)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	img, err := s.loadImage(ctx, req.PreviewImageURL)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := pipeline.Compute(img, pipeline.Request{
		Palette: pal,
		Mask:    m,
		Policy:  s.cfg.MaskPolicy,
		GridW:   gridW,
		GridH:   gridH,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := bomResponse{Result: out.Result, JobID: jobID, MaskReplaced: out.MaskReplaced}
	if req.Save {
		if resp.JobID == "" {
			resp.JobID = store.NewJobID()
		}
		files, err := pipeline.EncodeResult(out.Result)
		if err != nil {
			writeError(w, err)
			return
		}
		preview, err := pipeline.RenderPreview(out, pal, s.font, s.cfg.CellSize)
		if err != nil {
			writeError(w, err)
			return
		}
		files = append(files, preview)
		if err := s.store.SaveBOM(ctx, resp.JobID, out.Result, storeFiles(files)...); err != nil {
			writeError(w, err)
			return
		}
		resp.CSVURL = s.fileURL(r, resp.JobID, pipeline.CSVFile)
		resp.PreviewURL = s.fileURL(r, resp.JobID, pipeline.PreviewFile)
	}

	writeJSON(w, http.StatusOK, resp)
}

// loadImage resolves src from the artifact store when it points at
// /api/files/, otherwise through the fetcher. Remote URLs must pass the
// same allowlist as the image proxy.
func (s *Server) loadImage(ctx context.Context, src string) (image.Image, error) {
	p := src
	if s.cfg.PublicURL != "" {
		p = strings.TrimPrefix(p, s.cfg.PublicURL)
	}
	if rest, ok := strings.CutPrefix(p, filesPrefix); ok {
		jobID, name, _ := strings.Cut(rest, "/")
		a, err := s.store.Artifact(ctx, jobID, name)
		if err != nil {
			return nil, &imaging.LoadError{Source: src, Err: err}
		}
		img, _, err := imaging.Decode(a.Data)
		if err != nil {
			return nil, &imaging.LoadError{Source: src, Err: err}
		}
		return img, nil
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		if _, err := s.cfg.Proxy.Check(src); err != nil {
			return nil, err
		}
	}
	return s.fetcher.FetchImage(ctx, src)
}

func storeFiles(arts []pipeline.Artifact) []store.File {
	out := make([]store.File, len(arts))
	for i, a := range arts {
		out[i] = store.File{Name: a.Name, ContentType: a.ContentType, Data: a.Data}
	}
	return out
}

type saveBOMRequest struct {
	JobID  string              `json:"jobId"`
	Result *aggregation.Result `json:"result"`
}

type saveBOMResponse struct {
	OK     bool   `json:"ok"`
	CSVURL string `json:"csvUrl"`
}

func (s *Server) saveBOM(w http.ResponseWriter, r *http.Request) {
	var req saveBOMRequest
	if err := decodeJSON(w, r, jsonBodyOverhead, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.JobID == "" {
		writeError(w, badRequest("jobId is required"))
		return
	}
	if !store.ValidJobID(req.JobID) {
		writeError(w, store.ErrInvalidJobID)
		return
	}
	if req.Result == nil || req.Result.BOM == nil {
		writeError(w, badRequest("result.bom is required"))
		return
	}
	if err := req.Result.Validate(brick.Default); err != nil {
		writeError(w, err)
		return
	}

	files, err := pipeline.EncodeResult(req.Result)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SaveBOM(r.Context(), req.JobID, req.Result, storeFiles(files)...); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, saveBOMResponse{OK: true, CSVURL: s.fileURL(r, req.JobID, pipeline.CSVFile)})
}

type downloadFile struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Status string `json:"status,omitempty"`
}

type downloadResponse struct {
	JobID string         `json:"jobId"`
	Files []downloadFile `json:"files"`
	Note  string         `json:"note"`
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, badRequest("jobId is required"))
		return
	}
	if !store.ValidJobID(jobID) {
		writeError(w, store.ErrInvalidJobID)
		return
	}
	infos, err := s.store.List(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	files := make([]downloadFile, 0, len(infos)+1)
	for _, info := range infos {
		files = append(files, downloadFile{
			Name: info.Name,
			URL:  s.fileURL(r, jobID, info.Name),
			Size: info.Size,
		})
	}
	files = append(files, downloadFile{Name: buildGuideName, Status: "pending"})

	writeJSON(w, http.StatusOK, downloadResponse{
		JobID: jobID,
		Files: files,
		Note:  "The layer-by-layer build guide is not available yet.",
	})
}

func (s *Server) file(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	name := chi.URLParam(r, "name")
	a, err := s.store.Artifact(r.Context(), jobID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Write(a.Data)
}

type checkoutRequest struct {
	JobID string `json:"jobId"`
}

type checkoutResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
	Amount      int    `json:"amount"`
	Currency    string `json:"currency"`
	Bypassed    bool   `json:"bypassed"`
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	// An empty body is allowed.
	if err := decodeJSON(w, r, jsonBodyOverhead, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, err)
		return
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = store.NewJobID()
	} else if !store.ValidJobID(jobID) {
		writeError(w, store.ErrInvalidJobID)
		return
	}

	resp := checkoutResponse{
		SessionID:   "sess_" + uuid.NewString(),
		CheckoutURL: s.origin(r) + "/success?jobId=" + url.QueryEscape(jobID),
		Amount:      s.cfg.Price,
		Currency:    s.cfg.Currency,
	}
	if s.cfg.AdminMode {
		resp.SessionID = "admin_bypass_" + uuid.NewString()
		resp.Amount = 0
		resp.Bypassed = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) imageProxy(w http.ResponseWriter, r *http.Request) {
	u, err := s.cfg.Proxy.Check(r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	data, contentType, err := s.fetcher.Fetch(ctx, u.String())
	if err != nil {
		writeError(w, err)
		return
	}
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}
