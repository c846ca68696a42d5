package store

import (
	"sync"

	"booknest/pkg/domain"
)

// MemoryStore keeps books and reviews in-process. It exists for tests and
// local development; it implements the same Store contract as GormStore.
type MemoryStore struct {
	mu         sync.RWMutex
	books      map[int64]domain.Book
	reviews    map[int64][]domain.Review
	order      []int64
	nextBookID int64
	nextRevID  int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[int64]domain.Book),
		reviews: make(map[int64][]domain.Review),
	}
}

// CreateBook stores a book and assigns the next ID.
func (m *MemoryStore) CreateBook(b *domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextBookID++
	b.ID = m.nextBookID
	m.books[b.ID] = *b
	m.order = append(m.order, b.ID)
	return nil
}

// GetBook retrieves a book by ID.
func (m *MemoryStore) GetBook(id int64) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

// ListBooks returns books in insertion order.
func (m *MemoryStore) ListBooks() ([]domain.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.order))
	for _, id := range m.order {
		if b, ok := m.books[id]; ok {
			res = append(res, b)
		}
	}
	return res, nil
}

// UpdateBook replaces a stored book.
func (m *MemoryStore) UpdateBook(b domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		return nil
	}
	m.books[b.ID] = b
	return nil
}

// DeleteBook removes a book and its reviews.
func (m *MemoryStore) DeleteBook(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, id)
	delete(m.reviews, id)
	filtered := m.order[:0]
	for _, item := range m.order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.order = filtered
	return nil
}

// AddReview records a review linked to a book and assigns the next ID.
func (m *MemoryStore) AddReview(r *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRevID++
	r.ID = m.nextRevID
	m.reviews[r.BookID] = append(m.reviews[r.BookID], *r)
	return nil
}

// ListReviews returns reviews for a book in insertion order.
func (m *MemoryStore) ListReviews(bookID int64) ([]domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Review, 0, len(m.reviews[bookID]))
	res = append(res, m.reviews[bookID]...)
	return res, nil
}
