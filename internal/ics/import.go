package ics

import (
	"context"
	"time"

	appLog "schedcal/internal/log"
	"schedcal/internal/model"
)

// Upserter stores imported records under their UIDs.
type Upserter interface {
	Upsert(records []model.Record) ([]model.Record, error)
}

// ImportResult summarizes one Import run.
type ImportResult struct {
	Imported int             `json:"imported"`
	Failures []model.Failure `json:"failures,omitempty"`
	Errors   []error         `json:"-"`
}

// Importer pulls every configured feed into a store.
type Importer struct {
	Fetcher  *Fetcher
	Store    Upserter
	Location *time.Location
}

// Import fetches, parses and upserts each source. A source that cannot be
// fetched or parsed is reported in Errors; bad VEVENTs land in Failures.
// The returned error is only set when the store rejects the write.
func (im *Importer) Import(ctx context.Context, sources []Source) (ImportResult, error) {
	var res ImportResult
	if len(sources) == 0 {
		return res, nil
	}
	fetcher := im.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher("")
	}

	fetched, errs := fetcher.FetchAll(ctx, sources)
	res.Errors = append(res.Errors, errs...)

	var all []model.Record
	for _, fr := range fetched {
		records, failures, err := Parse(fr.Source, fr.Body, im.Location)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Failures = append(res.Failures, failures...)
		all = append(all, records...)
	}
	if len(all) == 0 {
		return res, nil
	}

	stored, err := im.Store.Upsert(all)
	if err != nil {
		return res, err
	}
	res.Imported = len(stored)
	appLog.Info("ics import completed", "sources", len(sources), "imported", res.Imported,
		"skipped", len(res.Failures), "errors", len(res.Errors))
	return res, nil
}
