package tmdb

import (
	"bytes"
	"strconv"
)

// FlexInt tolerates the untyped JSON TMDb sometimes returns: numbers,
// numeric strings, and null all decode; anything else decodes to 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}

	value, err := strconv.Atoi(string(data))
	if err != nil {
		*f = 0
		return nil
	}

	*f = FlexInt(value)
	return nil
}

func (f FlexInt) Int() int {
	return int(f)
}

type SearchResult struct {
	ID          FlexInt `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	PosterPath  string  `json:"poster_path"`
}

type SearchPage struct {
	Page         FlexInt        `json:"page"`
	Results      []SearchResult `json:"results"`
	TotalPages   FlexInt        `json:"total_pages"`
	TotalResults FlexInt        `json:"total_results"`
}

type NamedRef struct {
	ID   FlexInt `json:"id"`
	Name string  `json:"name"`
}

type Details struct {
	ID                  FlexInt    `json:"id"`
	Title               string     `json:"title"`
	Overview            string     `json:"overview"`
	Tagline             string     `json:"tagline"`
	ReleaseDate         string     `json:"release_date"`
	Runtime             FlexInt    `json:"runtime"`
	Budget              FlexInt    `json:"budget"`
	Revenue             FlexInt    `json:"revenue"`
	VoteAverage         float64    `json:"vote_average"`
	Homepage            string     `json:"homepage"`
	PosterPath          string     `json:"poster_path"`
	BackdropPath        string     `json:"backdrop_path"`
	Genres              []NamedRef `json:"genres"`
	ProductionCompanies []NamedRef `json:"production_companies"`
}

type CrewMember struct {
	Department string `json:"department"`
	Job        string `json:"job"`
	Name       string `json:"name"`
}

type Credits struct {
	Crew []CrewMember `json:"crew"`
}
