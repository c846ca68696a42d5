package app

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"booknest/pkg/ai"
	"booknest/pkg/domain"
	"booknest/pkg/storage"
	"booknest/pkg/store"
)

// Config wires required dependencies and timeouts for the core service.
type Config struct {
	Store      store.Store
	Objects    storage.ObjectStore
	Summarizer ai.Summarizer
	Extractor  TextExtractor

	// Collaborator calls are network-bound; each runs under its own timeout.
	SummaryTimeout time.Duration
	StorageTimeout time.Duration
	PresignExpiry  time.Duration
}

// App is the book/review service wiring persistence and the external
// collaborators (text extraction, summarization, object storage).
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	summarizer     ai.Summarizer
	extractor      TextExtractor
	summaryTimeout time.Duration
	storageTimeout time.Duration
	presignExpiry  time.Duration
}

// New constructs the service. Store, Objects, and Summarizer are required;
// the extractor defaults to the built-in PDF extractor.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store required")
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("summarizer required")
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = PDFExtractor{}
	}
	summaryTimeout := cfg.SummaryTimeout
	if summaryTimeout <= 0 {
		summaryTimeout = 60 * time.Second
	}
	storageTimeout := cfg.StorageTimeout
	if storageTimeout <= 0 {
		storageTimeout = 30 * time.Second
	}
	presignExpiry := cfg.PresignExpiry
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		summarizer:     cfg.Summarizer,
		extractor:      extractor,
		summaryTimeout: summaryTimeout,
		storageTimeout: storageTimeout,
		presignExpiry:  presignExpiry,
	}, nil
}

// CreateBookInput carries the user-supplied book fields.
type CreateBookInput struct {
	Title         string
	Author        string
	Genre         string
	YearPublished *int
	Summary       string
}

// AddReviewInput carries the user-supplied review fields. Rating is a pointer
// so an absent rating can be told apart from zero.
type AddReviewInput struct {
	UserID     *int64
	ReviewText string
	Rating     *int
}

// CreateBook inserts a book from user-supplied fields.
func (a *App) CreateBook(in CreateBookInput) (domain.Book, error) {
	if err := validateBookInput(in); err != nil {
		return domain.Book{}, err
	}
	book := domain.Book{
		Title:         strings.TrimSpace(in.Title),
		Author:        strings.TrimSpace(in.Author),
		Genre:         strings.TrimSpace(in.Genre),
		YearPublished: in.YearPublished,
		Summary:       in.Summary,
	}
	if err := a.store.CreateBook(&book); err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// CreateBookFromPDF runs the upload pipeline: extract text, summarize, store
// the PDF, insert the book row. The collaborator steps are sequential and not
// transactional; a failed insert triggers a best-effort object delete so the
// upload is not orphaned.
func (a *App) CreateBookFromPDF(ctx context.Context, in CreateBookInput, filename string, data []byte) (domain.Book, error) {
	if err := validateBookInput(in); err != nil {
		return domain.Book{}, err
	}
	if err := validatePDFFilename(filename); err != nil {
		return domain.Book{}, err
	}

	text, err := a.extractor.ExtractText(filename, data)
	if err != nil {
		return domain.Book{}, fmt.Errorf("%w: %v", ErrNoText, err)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Book{}, fmt.Errorf("%w: pdf contains no extractable text", ErrNoText)
	}

	summary, err := a.summarize(ctx, text)
	if err != nil {
		return domain.Book{}, err
	}

	storageKey := buildStorageKey(in.Title, filename)
	if err := a.putObject(ctx, storageKey, data); err != nil {
		return domain.Book{}, err
	}

	book := domain.Book{
		Title:         strings.TrimSpace(in.Title),
		Author:        strings.TrimSpace(in.Author),
		Genre:         strings.TrimSpace(in.Genre),
		YearPublished: in.YearPublished,
		Summary:       summary,
		PDFFilePath:   a.objects.PublicURL(storageKey),
		StorageKey:    storageKey,
		SummaryMeta: map[string]string{
			"model":        a.summarizer.Model(),
			"input_runes":  strconv.Itoa(len([]rune(text))),
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := a.store.CreateBook(&book); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), a.storageTimeout)
		defer cancel()
		_ = a.objects.Delete(cleanupCtx, storageKey)
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// GenerateSummary extracts and summarizes a PDF without persisting anything.
func (a *App) GenerateSummary(ctx context.Context, filename string, data []byte) (string, error) {
	if err := validatePDFFilename(filename); err != nil {
		return "", err
	}
	text, err := a.extractor.ExtractText(filename, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoText, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: pdf contains no extractable text", ErrNoText)
	}
	return a.summarize(ctx, text)
}

// GetBook retrieves a book by ID.
func (a *App) GetBook(id int64) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	return book, nil
}

// ListBooks returns all books.
func (a *App) ListBooks() ([]domain.Book, error) {
	return a.store.ListBooks()
}

// UpdateBook applies a partial update; nil patch fields leave stored values
// unchanged.
func (a *App) UpdateBook(id int64, patch domain.BookPatch) (domain.Book, error) {
	book, err := a.GetBook(id)
	if err != nil {
		return domain.Book{}, err
	}
	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return domain.Book{}, fmt.Errorf("%w: title cannot be empty", ErrValidation)
		}
		book.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Author != nil {
		if strings.TrimSpace(*patch.Author) == "" {
			return domain.Book{}, fmt.Errorf("%w: author cannot be empty", ErrValidation)
		}
		book.Author = strings.TrimSpace(*patch.Author)
	}
	if patch.Genre != nil {
		book.Genre = strings.TrimSpace(*patch.Genre)
	}
	if patch.YearPublished != nil {
		book.YearPublished = patch.YearPublished
	}
	if patch.Summary != nil {
		book.Summary = *patch.Summary
	}
	if err := a.store.UpdateBook(book); err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a book, its reviews, and its stored PDF if any.
func (a *App) DeleteBook(ctx context.Context, id int64) error {
	book, err := a.GetBook(id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if book.StorageKey != "" {
		delCtx, cancel := context.WithTimeout(ctx, a.storageTimeout)
		defer cancel()
		if err := a.objects.Delete(delCtx, book.StorageKey); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}
	return nil
}

// AddReview validates and records a review for an existing book.
func (a *App) AddReview(bookID int64, in AddReviewInput) (domain.Review, error) {
	if _, err := a.GetBook(bookID); err != nil {
		return domain.Review{}, err
	}
	if strings.TrimSpace(in.ReviewText) == "" {
		return domain.Review{}, fmt.Errorf("%w: review_text is required", ErrValidation)
	}
	if in.Rating == nil {
		return domain.Review{}, fmt.Errorf("%w: rating is required", ErrValidation)
	}
	if *in.Rating < 1 || *in.Rating > 5 {
		return domain.Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	review := domain.Review{
		BookID:     bookID,
		UserID:     in.UserID,
		ReviewText: in.ReviewText,
		Rating:     *in.Rating,
	}
	if err := a.store.AddReview(&review); err != nil {
		return domain.Review{}, fmt.Errorf("add review: %w", err)
	}
	return review, nil
}

// ListReviews returns all reviews of an existing book.
func (a *App) ListReviews(bookID int64) ([]domain.Review, error) {
	if _, err := a.GetBook(bookID); err != nil {
		return nil, err
	}
	return a.store.ListReviews(bookID)
}

// GetBookSummary returns title, summary, and the live-computed average rating.
func (a *App) GetBookSummary(bookID int64) (domain.BookSummary, error) {
	book, err := a.GetBook(bookID)
	if err != nil {
		return domain.BookSummary{}, err
	}
	reviews, err := a.store.ListReviews(bookID)
	if err != nil {
		return domain.BookSummary{}, fmt.Errorf("list reviews: %w", err)
	}
	return domain.BookSummary{
		Title:         book.Title,
		Summary:       book.Summary,
		AverageRating: averageRating(reviews),
	}, nil
}

// GetDownloadURL returns a pre-signed URL for the stored PDF.
func (a *App) GetDownloadURL(ctx context.Context, id int64) (string, error) {
	book, err := a.GetBook(id)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(book.StorageKey) == "" {
		return "", fmt.Errorf("%w: book %d has no stored file", ErrNotFound, id)
	}
	signCtx, cancel := context.WithTimeout(ctx, a.storageTimeout)
	defer cancel()
	url, err := a.objects.PresignGet(signCtx, book.StorageKey, a.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return url, nil
}

func (a *App) summarize(ctx context.Context, text string) (string, error) {
	sumCtx, cancel := context.WithTimeout(ctx, a.summaryTimeout)
	defer cancel()
	summary, err := a.summarizer.Summarize(sumCtx, text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return summary, nil
}

func (a *App) putObject(ctx context.Context, key string, data []byte) error {
	putCtx, cancel := context.WithTimeout(ctx, a.storageTimeout)
	defer cancel()
	if err := a.objects.Put(putCtx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func validateBookInput(in CreateBookInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(in.Author) == "" {
		return fmt.Errorf("%w: author is required", ErrValidation)
	}
	return nil
}

func validatePDFFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return fmt.Errorf("%w: file must be a PDF", ErrValidation)
	}
	return nil
}

// averageRating is the arithmetic mean of review ratings rounded to two
// decimals; nil when there are no reviews.
func averageRating(reviews []domain.Review) *float64 {
	if len(reviews) == 0 {
		return nil
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	avg := math.Round(float64(sum)/float64(len(reviews))*100) / 100
	return &avg
}

func buildStorageKey(title, filename string) string {
	dir := sanitizeName(title)
	if dir == "" {
		dir = "untitled"
	}
	name := sanitizeName(filepath.Base(filename))
	if name == "" {
		name = "book.pdf"
	}
	return path.Join("books", dir, name)
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
