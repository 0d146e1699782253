package projections

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/sync/errgroup"

	"eduadmin/internal/adapters/api"
	"eduadmin/internal/application/crud"
)

// ErrMissingID is returned when a detail query has no id.
var ErrMissingID = errors.New("id is required")

// GetDetailDeps holds dependencies for single-record projections.
type GetDetailDeps struct {
	API Getter
}

// QueryGetProfile fetches the signed-in user's record.
// PRE: userID is non-empty
// POST: returns the USERS{id}/ record or the API error
func QueryGetProfile(ctx context.Context, userID string, deps GetDetailDeps) (crud.Record, error) {
	return getRecord(ctx, deps.API, api.Users, userID)
}

// QueryGetCenter fetches one center.
func QueryGetCenter(ctx context.Context, id string, deps GetDetailDeps) (crud.Record, error) {
	return getRecord(ctx, deps.API, api.Centers, id)
}

// SectionDetail is a section with its schedules.
type SectionDetail struct {
	Section   crud.Record
	Schedules []crud.Record
}

// QueryGetSection fetches a section and the schedules filtered by it concurrently.
// PRE: id is non-empty
// POST: the section fetch failing fails the query; a schedules failure leaves Schedules empty
func QueryGetSection(ctx context.Context, id string, deps GetDetailDeps) (SectionDetail, error) {
	if id == "" {
		return SectionDetail{}, ErrMissingID
	}
	var (
		detail    SectionDetail
		schedules any
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := getRecord(gctx, deps.API, api.Sections, id)
		detail.Section = rec
		return err
	})
	g.Go(func() error {
		q := url.Values{"section": {id}, "page": {"all"}}
		if err := deps.API.Get(gctx, string(api.Schedules), q, &schedules); err != nil {
			schedules = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return SectionDetail{}, err
	}
	detail.Schedules = recordsOf(schedules)
	return detail, nil
}

func getRecord(ctx context.Context, gw Getter, ep api.Endpoint, id string) (crud.Record, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	var rec map[string]any
	if err := gw.Get(ctx, ep.Item(id), nil, &rec); err != nil {
		return nil, fmt.Errorf("get %s%s: %w", ep, id, err)
	}
	return crud.Record(rec), nil
}
