package domain

// Book is a catalog entry for a literary work, optionally linked to a stored
// PDF and an auto- or user-provided summary.
type Book struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Author        string            `json:"author"`
	Genre         string            `json:"genre,omitempty"`
	YearPublished *int              `json:"year_published,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	PDFFilePath   string            `json:"pdf_file_path,omitempty"`
	StorageKey    string            `json:"-"`
	SummaryMeta   map[string]string `json:"summary_meta,omitempty"`
}

// Review is a user-submitted rating and comment attached to a book.
type Review struct {
	ID         int64  `json:"id"`
	BookID     int64  `json:"book_id"`
	UserID     *int64 `json:"user_id,omitempty"`
	ReviewText string `json:"review_text"`
	Rating     int    `json:"rating"`
}

// BookSummary is the read model returned by the summary endpoint. The average
// rating is nil when the book has no reviews, never zero.
type BookSummary struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	AverageRating *float64 `json:"average_rating"`
}

// BookPatch carries a partial update. Nil fields leave the stored values
// untouched.
type BookPatch struct {
	Title         *string `json:"title"`
	Author        *string `json:"author"`
	Genre         *string `json:"genre"`
	YearPublished *int    `json:"year_published"`
	Summary       *string `json:"summary"`
}
