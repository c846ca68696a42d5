package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"booknest/pkg/domain"
)

const migrateLockID int64 = 41184118

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&BookModel{}, &ReviewModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM review_models r
				WHERE NOT EXISTS (SELECT 1 FROM book_models b WHERE b.id = r.book_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'review_models'
					AND constraint_name = 'review_models_book_id_fkey'
				) THEN
					ALTER TABLE review_models
					ADD CONSTRAINT review_models_book_id_fkey
					FOREIGN KEY (book_id) REFERENCES book_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure review foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreWithDB wraps an already-open GORM connection. Migrations are the
// caller's responsibility.
func NewGormStoreWithDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateBook inserts a book and fills in the generated ID.
func (s *GormStore) CreateBook(b *domain.Book) error {
	model := bookToModel(*b)
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	b.ID = model.ID
	return nil
}

// GetBook retrieves a book.
func (s *GormStore) GetBook(id int64) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns all books in insertion order.
func (s *GormStore) ListBooks() ([]domain.Book, error) {
	var models []BookModel
	if err := s.db.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

// UpdateBook replaces all stored fields of an existing book.
func (s *GormStore) UpdateBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Model(&BookModel{}).
		Where("id = ?", b.ID).
		Select("title", "author", "genre", "year_published", "summary", "pdf_file_path", "storage_key", "summary_meta").
		Updates(&model).Error
}

// DeleteBook removes a book and its reviews in one transaction.
func (s *GormStore) DeleteBook(id int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ReviewModel{}, "book_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&BookModel{}, "id = ?", id).Error; err != nil {
			return err
		}
		return nil
	})
}

// AddReview inserts a review and fills in the generated ID.
func (s *GormStore) AddReview(r *domain.Review) error {
	model := reviewToModel(*r)
	if err := s.db.Create(&model).Error; err != nil {
		return err
	}
	r.ID = model.ID
	return nil
}

// ListReviews returns all reviews for a book in insertion order.
func (s *GormStore) ListReviews(bookID int64) ([]domain.Review, error) {
	var models []ReviewModel
	if err := s.db.Where("book_id = ?", bookID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Review, 0, len(models))
	for _, m := range models {
		res = append(res, reviewFromModel(m))
	}
	return res, nil
}

func bookToModel(b domain.Book) BookModel {
	var meta datatypes.JSON
	if len(b.SummaryMeta) > 0 {
		raw, _ := json.Marshal(b.SummaryMeta)
		meta = datatypes.JSON(raw)
	}
	return BookModel{
		ID:            b.ID,
		Title:         b.Title,
		Author:        b.Author,
		Genre:         b.Genre,
		YearPublished: b.YearPublished,
		Summary:       b.Summary,
		PDFFilePath:   b.PDFFilePath,
		StorageKey:    b.StorageKey,
		SummaryMeta:   meta,
	}
}

func bookFromModel(m BookModel) domain.Book {
	var meta map[string]string
	if len(m.SummaryMeta) > 0 {
		_ = json.Unmarshal(m.SummaryMeta, &meta)
	}
	return domain.Book{
		ID:            m.ID,
		Title:         m.Title,
		Author:        m.Author,
		Genre:         m.Genre,
		YearPublished: m.YearPublished,
		Summary:       m.Summary,
		PDFFilePath:   m.PDFFilePath,
		StorageKey:    m.StorageKey,
		SummaryMeta:   meta,
	}
}

func reviewToModel(r domain.Review) ReviewModel {
	return ReviewModel{
		ID:         r.ID,
		BookID:     r.BookID,
		UserID:     r.UserID,
		ReviewText: r.ReviewText,
		Rating:     r.Rating,
	}
}

func reviewFromModel(m ReviewModel) domain.Review {
	return domain.Review{
		ID:         m.ID,
		BookID:     m.BookID,
		UserID:     m.UserID,
		ReviewText: m.ReviewText,
		Rating:     m.Rating,
	}
}
