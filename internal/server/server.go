package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"booknest/internal/app"
	"booknest/internal/ratelimit"
	"booknest/internal/util"
	"booknest/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	UploadLimiter  *ratelimit.FixedWindowLimiter
	TrustProxy     bool
	MaxUploadBytes int64
}

// Server exposes the REST endpoints for books, reviews, and summaries.
type Server struct {
	app            *app.App
	uploadLimiter  *ratelimit.FixedWindowLimiter
	trustProxy     bool
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		uploadLimiter:  cfg.UploadLimiter,
		trustProxy:     cfg.TrustProxy,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookSubpath)
	s.mux.HandleFunc("/summaries", s.handleSummaries)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateBook(w, r)
	case http.MethodGet:
		s.handleListBooks(w)
	default:
		methodNotAllowed(w)
	}
}

// /books/{id}, /books/{id}/reviews, /books/{id}/summary, /books/{id}/download
func (s *Server) handleBookSubpath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/books/")
	parts := strings.SplitN(path, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		notFound(w, "not found")
		return
	}
	if len(parts) == 1 {
		s.handleBookByID(w, r, id)
		return
	}
	switch parts[1] {
	case "reviews":
		s.handleReviews(w, r, id)
	case "summary":
		s.handleBookSummary(w, r, id)
	case "download":
		s.handleDownload(w, r, id)
	default:
		notFound(w, "not found")
	}
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPut:
		var patch domain.BookPatch
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if _, err := s.app.UpdateBook(id, patch); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "book updated"})
	case http.MethodDelete:
		if err := s.app.DeleteBook(r.Context(), id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "book deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	if !s.allowUpload(w, r) {
		return
	}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		s.handleCreateBookFromPDF(w, r)
		return
	}

	var req createBookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	book, err := s.app.CreateBook(req.toInput())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (s *Server) handleCreateBookFromPDF(w http.ResponseWriter, r *http.Request) {
	in, filename, data, ok := s.parseUploadForm(w, r, true)
	if !ok {
		return
	}
	book, err := s.app.CreateBookFromPDF(r.Context(), in, filename, data)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          book.ID,
		"summary":     book.Summary,
		"storage_url": book.PDFFilePath,
	})
}

func (s *Server) handleListBooks(w http.ResponseWriter) {
	books, err := s.app.ListBooks()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// /books/{id}/reviews
func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request, bookID int64) {
	switch r.Method {
	case http.MethodPost:
		var req addReviewRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		review, err := s.app.AddReview(bookID, app.AddReviewInput{
			UserID:     req.UserID,
			ReviewText: req.ReviewText,
			Rating:     req.Rating,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]int64{"id": review.ID})
	case http.MethodGet:
		reviews, err := s.app.ListReviews(bookID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reviews)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookSummary(w http.ResponseWriter, r *http.Request, bookID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	summary, err := s.app.GetBookSummary(bookID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, bookID int64) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, err := s.app.GetDownloadURL(r.Context(), bookID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowUpload(w, r) {
		return
	}
	_, filename, data, ok := s.parseUploadForm(w, r, false)
	if !ok {
		return
	}
	summary, err := s.app.GenerateSummary(r.Context(), filename, data)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// parseUploadForm reads the multipart form shared by the book-upload and
// summary endpoints. withFields controls whether book fields are collected.
func (s *Server) parseUploadForm(w http.ResponseWriter, r *http.Request, withFields bool) (app.CreateBookInput, string, []byte, bool) {
	var in app.CreateBookInput
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return in, "", nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return in, "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return in, "", nil, false
	}
	if withFields {
		in.Title = r.FormValue("title")
		in.Author = r.FormValue("author")
		in.Genre = r.FormValue("genre")
		if raw := strings.TrimSpace(r.FormValue("year_published")); raw != "" {
			year, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "year_published must be an integer")
				return in, "", nil, false
			}
			in.YearPublished = &year
		}
	}
	return in, header.Filename, data, true
}

// allowUpload applies the optional fixed-window limit to upload endpoints.
func (s *Server) allowUpload(w http.ResponseWriter, r *http.Request) bool {
	if s.uploadLimiter == nil {
		return true
	}
	if !s.uploadLimiter.Allow(util.ClientIP(r, s.trustProxy)) {
		writeError(w, http.StatusTooManyRequests, "too many uploads, slow down")
		return false
	}
	return true
}

type createBookRequest struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Genre         string `json:"genre"`
	YearPublished *int   `json:"year_published"`
	Summary       string `json:"summary"`
}

func (req createBookRequest) toInput() app.CreateBookInput {
	return app.CreateBookInput{
		Title:         req.Title,
		Author:        req.Author,
		Genre:         req.Genre,
		YearPublished: req.YearPublished,
		Summary:       req.Summary,
	}
}

type addReviewRequest struct {
	UserID     *int64 `json:"user_id"`
	ReviewText string `json:"review_text"`
	Rating     *int   `json:"rating"`
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

// writeAppError maps service errors onto the HTTP error taxonomy.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNoText):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrUpstream):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, app.ErrStorage):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCode(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.HasPrefix(message, "no usable text"):
		return "BOOK_EXTRACTION_FAILED"
	case strings.HasPrefix(message, "summarization failed"):
		return "BOOK_SUMMARY_UPSTREAM_FAILED"
	case strings.HasPrefix(message, "object storage failed"):
		return "BOOK_STORAGE_FAILED"
	case strings.Contains(message, "file is required"):
		return "BOOK_FILE_REQUIRED"
	case message == "invalid form data":
		return "BOOK_INVALID_UPLOAD_FORM"
	case message == "invalid json body":
		return "BOOK_INVALID_REQUEST"
	}

	switch status {
	case http.StatusBadRequest:
		return "BOOK_VALIDATION_FAILED"
	case http.StatusNotFound:
		return "BOOK_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	case http.StatusBadGateway:
		return "SYSTEM_UPSTREAM_ERROR"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
