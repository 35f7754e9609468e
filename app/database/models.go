package database

import (
	"time"
)

// Taxonomy kinds. Terms from every kind live in one table, keyed by
// (taxonomy, name) and, where the upstream assigned one, (taxonomy, tmdb_id).
const (
	TaxonomyGenre             = "genre"
	TaxonomyProductionCompany = "production_company"
	TaxonomyArticleTag        = "article_tag"
)

// Asset kinds for movie images.
const (
	AssetKindPoster   = "poster"
	AssetKindBackdrop = "backdrop"
)

type Movie struct {
	ID              string
	TMDbID          int
	Title           string
	ComparisonTitle string // normalized for stable sort ordering
	Synopsis        string
	Tagline         string
	ReleaseDate     string // YYYY-MM-DD
	Runtime         int
	Budget          int64
	BoxOffice       int64
	Rating          float64
	Website         string
	Director        string
	Writer          string
	ToWatch         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Article struct {
	ID         string
	URL        string // normalized, unique
	Title      string
	Excerpt    string
	IsRead     bool
	IsFavorite bool
	DateAdded  string // YYYY-MM-DD
	DateRead   string // YYYY-MM-DD, empty while unread
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Term struct {
	ID       string
	Taxonomy string
	Name     string
	TMDbID   int // 0 for terms without an upstream ID
}

// Asset is a stored image blob reference. SourcePath records the upstream
// image path so repeated ingestion of the same entity can skip re-downloading
// an unchanged image.
type Asset struct {
	ID         string
	MovieID    string
	Kind       string
	SourcePath string
	FilePath   string
	CreatedAt  time.Time
}

// MovieQuery holds the normalized list parameters for movies.
type MovieQuery struct {
	Page    int
	Count   int
	TermID  string // filter by assigned term (genre)
	Keyword string
	ToWatch bool // when true, only unwatched movies
}

// ArticleQuery holds the normalized list parameters for articles.
type ArticleQuery struct {
	Page     int
	Count    int
	TermID   string // filter by assigned tag
	Keyword  string
	Read     *bool
	Favorite *bool
}
