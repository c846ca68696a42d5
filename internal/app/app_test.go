package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"booknest/pkg/domain"
	"booknest/pkg/store"
)

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) ExtractText(string, []byte) (string, error) {
	return f.text, f.err
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.summary != "" {
		return f.summary, nil
	}
	return "summary of: " + text, nil
}

func (f *fakeSummarizer) Model() string { return "fake/test-model" }

func newTestApp(t *testing.T, st store.Store, objects *testObjects, summarizer *fakeSummarizer, extractor TextExtractor) *App {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	if objects == nil {
		objects = newTestObjects()
	}
	if summarizer == nil {
		summarizer = &fakeSummarizer{}
	}
	if extractor == nil {
		extractor = fakeExtractor{text: "some extracted text"}
	}
	a, err := New(Config{
		Store:          st,
		Objects:        objects,
		Summarizer:     summarizer,
		Extractor:      extractor,
		SummaryTimeout: time.Second,
		StorageTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestCreateBookValidation(t *testing.T) {
	a := newTestApp(t, nil, nil, nil, nil)
	if _, err := a.CreateBook(CreateBookInput{Author: "Someone"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing title: got %v, want ErrValidation", err)
	}
	if _, err := a.CreateBook(CreateBookInput{Title: "A Title"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing author: got %v, want ErrValidation", err)
	}
	book, err := a.CreateBook(CreateBookInput{Title: "A Title", Author: "Someone"})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if book.ID == 0 {
		t.Fatalf("expected assigned ID")
	}
}

func TestGetBookNotFound(t *testing.T) {
	a := newTestApp(t, nil, nil, nil, nil)
	if _, err := a.GetBook(99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUpdateBookPartialMerge(t *testing.T) {
	a := newTestApp(t, nil, nil, nil, nil)
	book, err := a.CreateBook(CreateBookInput{
		Title:         "Dune",
		Author:        "Frank Herbert",
		Genre:         "sci-fi",
		YearPublished: intPtr(1965),
	})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}

	updated, err := a.UpdateBook(book.ID, domain.BookPatch{Genre: strPtr("science fiction")})
	if err != nil {
		t.Fatalf("update book: %v", err)
	}
	if updated.Genre != "science fiction" {
		t.Fatalf("genre = %q, want %q", updated.Genre, "science fiction")
	}
	if updated.Title != "Dune" || updated.Author != "Frank Herbert" {
		t.Fatalf("unpatched fields changed: %+v", updated)
	}
	if updated.YearPublished == nil || *updated.YearPublished != 1965 {
		t.Fatalf("year_published changed: %+v", updated.YearPublished)
	}

	if _, err := a.UpdateBook(book.ID, domain.BookPatch{Title: strPtr("  ")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank title patch: got %v, want ErrValidation", err)
	}
	if _, err := a.UpdateBook(12345, domain.BookPatch{Genre: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent id: got %v, want ErrNotFound", err)
	}
}

func TestAddReviewValidation(t *testing.T) {
	a := newTestApp(t, nil, nil, nil, nil)
	book, _ := a.CreateBook(CreateBookInput{Title: "T", Author: "A"})

	if _, err := a.AddReview(999, AddReviewInput{ReviewText: "fine", Rating: intPtr(3)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent book: got %v, want ErrNotFound", err)
	}
	if _, err := a.AddReview(book.ID, AddReviewInput{Rating: intPtr(3)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing review_text: got %v, want ErrValidation", err)
	}
	if _, err := a.AddReview(book.ID, AddReviewInput{ReviewText: "fine"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing rating: got %v, want ErrValidation", err)
	}
	if _, err := a.AddReview(book.ID, AddReviewInput{ReviewText: "fine", Rating: intPtr(6)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("out-of-range rating: got %v, want ErrValidation", err)
	}
	review, err := a.AddReview(book.ID, AddReviewInput{ReviewText: "fine", Rating: intPtr(4)})
	if err != nil {
		t.Fatalf("add review: %v", err)
	}
	if review.ID == 0 || review.BookID != book.ID {
		t.Fatalf("unexpected review: %+v", review)
	}
}

func TestListReviewsScopedToBook(t *testing.T) {
	a := newTestApp(t, nil, nil, nil, nil)
	first, _ := a.CreateBook(CreateBookInput{Title: "First", Author: "A"})
	second, _ := a.CreateBook(CreateBookInput{Title: "Second", Author: "B"})

	if _, err := a.AddReview(first.ID, AddReviewInput{ReviewText: "one", Rating: intPtr(5)}); err != nil {
		t.Fatalf("add review: %v", err)
	}
	if _, err := a.AddReview(second.ID, AddReviewInput{ReviewText: "other", Rating: intPtr(2)}); err != nil {
		t.Fatalf("add review: %v", err)
	}

	reviews, err := a.ListReviews(first.ID)
	if err != nil {
		t.Fatalf("list reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].ReviewText != "one" {
		t.Fatalf("reviews = %+v, want exactly the one for book %d", reviews, first.ID)
	}

	if _, err := a.ListReviews(9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent book: got %v, want ErrNotFound", err)
	}
}

func TestGetBookSummaryAverageRating(t *testing.T) {
	a := newTestApp(t, nil, nil, nil, nil)
	book, _ := a.CreateBook(CreateBookInput{Title: "T", Author: "A", Summary: "a summary"})

	summary, err := a.GetBookSummary(book.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.AverageRating != nil {
		t.Fatalf("average with no reviews = %v, want nil", *summary.AverageRating)
	}
	if summary.Title != "T" || summary.Summary != "a summary" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	for _, rating := range []int{4, 5} {
		if _, err := a.AddReview(book.ID, AddReviewInput{ReviewText: "r", Rating: intPtr(rating)}); err != nil {
			t.Fatalf("add review: %v", err)
		}
	}
	summary, err = a.GetBookSummary(book.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.AverageRating == nil || *summary.AverageRating != 4.5 {
		t.Fatalf("average = %v, want 4.5", summary.AverageRating)
	}

	if _, err := a.AddReview(book.ID, AddReviewInput{ReviewText: "r", Rating: intPtr(3)}); err != nil {
		t.Fatalf("add review: %v", err)
	}
	summary, _ = a.GetBookSummary(book.ID)
	if summary.AverageRating == nil || *summary.AverageRating != 4.0 {
		t.Fatalf("average = %v, want 4.0", summary.AverageRating)
	}
}

func TestAverageRatingRounding(t *testing.T) {
	reviews := []domain.Review{{Rating: 5}, {Rating: 4}, {Rating: 4}}
	avg := averageRating(reviews)
	if avg == nil || *avg != 4.33 {
		t.Fatalf("average = %v, want 4.33", avg)
	}
}

func TestDeleteBookCascades(t *testing.T) {
	st := store.NewMemoryStore()
	a := newTestApp(t, st, nil, nil, nil)
	book, _ := a.CreateBook(CreateBookInput{Title: "T", Author: "A"})
	if _, err := a.AddReview(book.ID, AddReviewInput{ReviewText: "r", Rating: intPtr(4)}); err != nil {
		t.Fatalf("add review: %v", err)
	}

	if err := a.DeleteBook(context.Background(), book.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}
	if _, err := a.GetBook(book.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted: got %v, want ErrNotFound", err)
	}
	// Listing reviews of the deleted book is not-found, not an empty list.
	if _, err := a.ListReviews(book.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("list reviews of deleted: got %v, want ErrNotFound", err)
	}
	reviews, err := st.ListReviews(book.ID)
	if err != nil {
		t.Fatalf("store list reviews: %v", err)
	}
	if len(reviews) != 0 {
		t.Fatalf("orphan reviews left behind: %+v", reviews)
	}

	if err := a.DeleteBook(context.Background(), book.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: got %v, want ErrNotFound", err)
	}
}

func TestCreateBookFromPDF(t *testing.T) {
	objects := newTestObjects()
	summarizer := &fakeSummarizer{summary: "a short summary"}
	a := newTestApp(t, nil, objects, summarizer, fakeExtractor{text: "book text"})

	book, err := a.CreateBookFromPDF(context.Background(), CreateBookInput{
		Title:  "My Book!",
		Author: "Someone",
	}, "My Book (final).pdf", []byte("%PDF-1.4 data"))
	if err != nil {
		t.Fatalf("create from pdf: %v", err)
	}
	if book.Summary != "a short summary" {
		t.Fatalf("summary = %q", book.Summary)
	}
	wantKey := "books/My_Book/My_Book_final_.pdf"
	if book.StorageKey != wantKey {
		t.Fatalf("storage key = %q, want %q", book.StorageKey, wantKey)
	}
	if !strings.HasSuffix(book.PDFFilePath, wantKey) {
		t.Fatalf("pdf_file_path = %q, want suffix %q", book.PDFFilePath, wantKey)
	}
	if _, ok := objects.stored[wantKey]; !ok {
		t.Fatalf("object not uploaded under %q (stored: %v)", wantKey, objects.stored)
	}
	if book.SummaryMeta["model"] != "fake/test-model" {
		t.Fatalf("summary meta = %+v", book.SummaryMeta)
	}
}

func TestCreateBookFromPDFRejectsNonPDF(t *testing.T) {
	objects := newTestObjects()
	summarizer := &fakeSummarizer{}
	a := newTestApp(t, nil, objects, summarizer, nil)

	_, err := a.CreateBookFromPDF(context.Background(), CreateBookInput{Title: "T", Author: "A"}, "notes.txt", []byte("x"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if summarizer.calls != 0 || len(objects.stored) != 0 {
		t.Fatalf("collaborators invoked for invalid filename")
	}
}

func TestCreateBookFromPDFEmptyTextNoSideEffects(t *testing.T) {
	st := store.NewMemoryStore()
	objects := newTestObjects()
	summarizer := &fakeSummarizer{}
	a := newTestApp(t, st, objects, summarizer, fakeExtractor{text: "   \n\t "})

	_, err := a.CreateBookFromPDF(context.Background(), CreateBookInput{Title: "T", Author: "A"}, "empty.pdf", []byte("x"))
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("got %v, want ErrNoText", err)
	}
	if summarizer.calls != 0 {
		t.Fatalf("summarizer called despite empty text")
	}
	if len(objects.stored) != 0 {
		t.Fatalf("object uploaded despite empty text")
	}
	books, _ := st.ListBooks()
	if len(books) != 0 {
		t.Fatalf("book inserted despite empty text")
	}
}

func TestCreateBookFromPDFUpstreamFailure(t *testing.T) {
	objects := newTestObjects()
	a := newTestApp(t, nil, objects, &fakeSummarizer{err: errors.New("model offline")}, nil)

	_, err := a.CreateBookFromPDF(context.Background(), CreateBookInput{Title: "T", Author: "A"}, "b.pdf", []byte("x"))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("got %v, want ErrUpstream", err)
	}
	if len(objects.stored) != 0 {
		t.Fatalf("object uploaded despite summarizer failure")
	}
}

type failingCreateStore struct {
	store.Store
}

func (f failingCreateStore) CreateBook(*domain.Book) error {
	return fmt.Errorf("insert failed")
}

func TestCreateBookFromPDFCompensatesFailedInsert(t *testing.T) {
	objects := newTestObjects()
	a := newTestApp(t, failingCreateStore{store.NewMemoryStore()}, objects, nil, nil)

	_, err := a.CreateBookFromPDF(context.Background(), CreateBookInput{Title: "T", Author: "A"}, "b.pdf", []byte("x"))
	if err == nil {
		t.Fatalf("expected insert failure")
	}
	if len(objects.deletes) != 1 {
		t.Fatalf("uploaded object not cleaned up: deletes=%v", objects.deletes)
	}
	if len(objects.stored) != 0 {
		t.Fatalf("orphaned object remains: %v", objects.stored)
	}
}

func TestGenerateSummaryStateless(t *testing.T) {
	st := store.NewMemoryStore()
	objects := newTestObjects()
	a := newTestApp(t, st, objects, &fakeSummarizer{summary: "just a summary"}, fakeExtractor{text: "content"})

	summary, err := a.GenerateSummary(context.Background(), "doc.pdf", []byte("x"))
	if err != nil {
		t.Fatalf("generate summary: %v", err)
	}
	if summary != "just a summary" {
		t.Fatalf("summary = %q", summary)
	}
	books, _ := st.ListBooks()
	if len(books) != 0 {
		t.Fatalf("book persisted by stateless summary")
	}
	if len(objects.stored) != 0 {
		t.Fatalf("object uploaded by stateless summary")
	}
}

func TestGenerateSummaryRejectsExtractorFailure(t *testing.T) {
	a := newTestApp(t, nil, nil, nil, fakeExtractor{err: errors.New("broken xref table")})
	if _, err := a.GenerateSummary(context.Background(), "broken.pdf", []byte("x")); !errors.Is(err, ErrNoText) {
		t.Fatalf("got %v, want ErrNoText", err)
	}
}

func TestGetDownloadURL(t *testing.T) {
	objects := newTestObjects()
	a := newTestApp(t, nil, objects, nil, nil)

	book, err := a.CreateBookFromPDF(context.Background(), CreateBookInput{Title: "T", Author: "A"}, "b.pdf", []byte("x"))
	if err != nil {
		t.Fatalf("create from pdf: %v", err)
	}
	url, err := a.GetDownloadURL(context.Background(), book.ID)
	if err != nil {
		t.Fatalf("get download url: %v", err)
	}
	if !strings.Contains(url, book.StorageKey) {
		t.Fatalf("url = %q, want it to reference %q", url, book.StorageKey)
	}

	plain, _ := a.CreateBook(CreateBookInput{Title: "No File", Author: "A"})
	if _, err := a.GetDownloadURL(context.Background(), plain.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("book without file: got %v, want ErrNotFound", err)
	}
}
