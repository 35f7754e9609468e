package database

type MovieRepository interface {
	GetMovie(id string) (*Movie, error)
	GetMovieByTMDbID(tmdbID int) (*Movie, error)
	ListMovies(q MovieQuery) ([]Movie, int, error)
	CountMovies() (int, error)

	UpsertMovie(m *Movie) error
	SetWatchStatus(id string, toWatch bool) error
	DeleteMovie(id string) error

	SetMovieTerms(movieID string, termIDs []string) error
	GetMovieTerms(movieID string, taxonomy string) ([]Term, error)
}

type ArticleRepository interface {
	GetArticle(id string) (*Article, error)
	GetArticleByURL(url string) (*Article, error)
	ListArticles(q ArticleQuery) ([]Article, int, error)
	CountArticles() (int, error)
	CountReadArticles() (int, error)

	UpsertArticle(a *Article) error
	SetReadStatus(id string, read bool, dateRead string) error
	SetFavoriteStatus(id string, favorite bool) error
	DeleteArticle(id string) error

	SetArticleTerms(articleID string, termIDs []string) error
	GetArticleTerms(articleID string) ([]Term, error)
}

type TermRepository interface {
	GetTerm(id string) (*Term, error)
	GetTermByTMDbID(taxonomy string, tmdbID int) (*Term, error)
	GetTermByName(taxonomy, name string) (*Term, error)
	ListTerms(taxonomy string) ([]Term, error)

	// CreateTerm is create-or-fetch-on-conflict: a concurrent insert of the
	// same (taxonomy, name) never yields a duplicate.
	CreateTerm(taxonomy, name string, tmdbID int) (*Term, error)
	SetTermTMDbID(termID string, tmdbID int) error
}

type AssetRepository interface {
	GetAsset(movieID, kind string) (*Asset, error)
	GetAssetsForMovie(movieID string) ([]Asset, error)

	SaveAsset(a *Asset) error
	DeleteAssetsForMovie(movieID string) ([]Asset, error)
}

// MetaRepository manages the global watermark used for query-cache
// invalidation. The bump is a single statement, so concurrent writers cannot
// lose an invalidation.
type MetaRepository interface {
	Watermark() (int64, error)
	BumpWatermark() (int64, error)
}
