package taxonomy

import (
	"fmt"
	"log/slog"

	"github.com/robrotell/vril/app/database"
)

// Ref is an upstream term reference awaiting resolution to a local term.
type Ref struct {
	TMDbID int
	Name   string
}

// Resolver maps upstream term references to local terms, creating terms
// that do not exist yet.
type Resolver struct {
	termRepo database.TermRepository
}

func NewResolver(termRepo database.TermRepository) *Resolver {
	return &Resolver{termRepo: termRepo}
}

// ResolveOrCreate returns the local term for an upstream reference.
//
// Resolution order: upstream ID lookup first, then exact name match.
// A name match with no stored upstream ID gets the ID backfilled so the
// next resolution takes the fast path. Name matching is case sensitive:
// "Science Fiction" and "science fiction" are distinct terms.
func (r *Resolver) ResolveOrCreate(taxonomy string, ref Ref) (*database.Term, error) {
	if ref.Name == "" {
		return nil, fmt.Errorf("term name is empty")
	}

	if ref.TMDbID != 0 {
		term, err := r.termRepo.GetTermByTMDbID(taxonomy, ref.TMDbID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up term by TMDb ID: %w", err)
		}
		if term != nil {
			return term, nil
		}
	}

	term, err := r.termRepo.GetTermByName(taxonomy, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up term by name: %w", err)
	}
	if term != nil {
		if ref.TMDbID != 0 && term.TMDbID == 0 {
			if err := r.termRepo.SetTermTMDbID(term.ID, ref.TMDbID); err != nil {
				return nil, fmt.Errorf("failed to backfill term TMDb ID: %w", err)
			}
			term.TMDbID = ref.TMDbID
		}
		return term, nil
	}

	created, err := r.termRepo.CreateTerm(taxonomy, ref.Name, ref.TMDbID)
	if err != nil {
		return nil, fmt.Errorf("failed to create term: %w", err)
	}

	slog.Debug("Term created", "taxonomy", taxonomy, "name", ref.Name, "tmdb_id", ref.TMDbID)

	return created, nil
}

// ResolveAll resolves a batch of references. Failures are logged and
// skipped so one bad term does not sink the rest of the batch.
func (r *Resolver) ResolveAll(taxonomy string, refs []Ref) []database.Term {
	terms := make([]database.Term, 0, len(refs))

	for _, ref := range refs {
		term, err := r.ResolveOrCreate(taxonomy, ref)
		if err != nil {
			slog.Warn("Failed to resolve term", "taxonomy", taxonomy, "name", ref.Name, "error", err)
			continue
		}
		terms = append(terms, *term)
	}

	return terms
}
