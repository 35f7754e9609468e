package ingest

import "fmt"

// Pipeline stages, used to tag fatal ingestion errors.
const (
	StageDedupe   = "dedupe"
	StageDetails  = "details"
	StageCredits  = "credits"
	StageTaxonomy = "taxonomy"
	StageImages   = "images"
	StagePersist  = "persist"
	StageScrape   = "scrape"
)

// IngestionError is a fatal pipeline failure tagged with the stage at
// which it occurred.
type IngestionError struct {
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed at %s stage: %s", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}
