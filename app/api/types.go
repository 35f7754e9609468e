package api

import (
	"github.com/robrotell/vril/app/database"
)

type movieBlock struct {
	ID          string   `json:"id"`
	TMDbID      int      `json:"tmdb_id"`
	Title       string   `json:"title"`
	Synopsis    string   `json:"synopsis"`
	ReleaseDate string   `json:"release_date"`
	Rating      float64  `json:"rating"`
	ToWatch     bool     `json:"to_watch"`
	Genres      []string `json:"genres"`
	Poster      string   `json:"poster,omitempty"`
}

type movieDetail struct {
	movieBlock
	Tagline             string   `json:"tagline"`
	Runtime             int      `json:"runtime"`
	Budget              int64    `json:"budget"`
	BoxOffice           int64    `json:"box_office"`
	Website             string   `json:"website"`
	Director            string   `json:"director"`
	Writer              string   `json:"writer"`
	ProductionCompanies []string `json:"production_companies"`
	Backdrop            string   `json:"backdrop,omitempty"`
}

type articleBlock struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Excerpt    string   `json:"excerpt"`
	IsRead     bool     `json:"is_read"`
	IsFavorite bool     `json:"is_favorite"`
	DateAdded  string   `json:"date_added"`
	DateRead   string   `json:"date_read,omitempty"`
	Tags       []string `json:"tags"`
}

type termBlock struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	TMDbID int    `json:"tmdb_id,omitempty"`
}

type searchBlock struct {
	TMDbID      int    `json:"tmdb_id"`
	Title       string `json:"title"`
	Overview    string `json:"overview"`
	ReleaseDate string `json:"release_date"`
	PosterPath  string `json:"poster_path"`
	Added       bool   `json:"added"`
	PostID      string `json:"post_id,omitempty"`
	ToWatch     bool   `json:"to_watch,omitempty"`
}

type listMeta struct {
	PostCount  int `json:"post_count"`
	TotalPosts int `json:"total_posts"`
}

func termNames(terms []database.Term, taxonomy string) []string {
	names := make([]string, 0, len(terms))
	for _, term := range terms {
		if term.Taxonomy == taxonomy {
			names = append(names, term.Name)
		}
	}
	return names
}

func termBlocks(terms []database.Term) []termBlock {
	blocks := make([]termBlock, 0, len(terms))
	for _, term := range terms {
		blocks = append(blocks, termBlock{ID: term.ID, Name: term.Name, TMDbID: term.TMDbID})
	}
	return blocks
}
