package store

import "booknest/pkg/domain"

// Store defines persistence operations for books and reviews.
type Store interface {
	// books
	CreateBook(b *domain.Book) error
	GetBook(id int64) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	UpdateBook(b domain.Book) error
	DeleteBook(id int64) error

	// reviews
	AddReview(r *domain.Review) error
	ListReviews(bookID int64) ([]domain.Review, error)
}
