package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Dashboard bundles every view for one query, as rendered by a
// single analytics page.
type Dashboard struct {
	Query       Query            `json:"query"`
	Days        []DayBucket      `json:"days"`
	KPIs        KPITrend         `json:"kpis"`
	Funnel      Funnel           `json:"funnel"`
	Segments    Segments         `json:"segments"`
	Leaderboard []LeaderboardRow `json:"leaderboard"`
}

// GetDashboard computes all views concurrently. Each view degrades
// independently.
func (e *Engine) GetDashboard(ctx context.Context, q Query) Dashboard {
	d := Dashboard{Query: q}
	var g errgroup.Group
	g.Go(func() error {
		d.Days = e.GetDaySeries(ctx, q)
		return nil
	})
	g.Go(func() error {
		d.KPIs = e.GetKPITrend(ctx, q)
		return nil
	})
	g.Go(func() error {
		d.Funnel = e.GetFunnel(ctx, q)
		return nil
	})
	g.Go(func() error {
		d.Segments = e.GetSegments(ctx, q)
		return nil
	})
	g.Go(func() error {
		d.Leaderboard = e.GetLeaderboard(ctx, q, nil)
		return nil
	})
	_ = g.Wait()
	return d
}
