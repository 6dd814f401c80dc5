package aggregate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/flightwatch/flightboard/pkg/config"
	"github.com/flightwatch/flightboard/pkg/history"
	"github.com/flightwatch/flightboard/pkg/livecache"
	"github.com/flightwatch/flightboard/pkg/provider"
)

// Period selects the dashboard view window.
type Period string

const (
	PeriodCurrent Period = "current"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
)

// Periods lists every supported period value.
var Periods = []Period{PeriodCurrent, PeriodWeek, PeriodMonth, PeriodQuarter}

// ParsePeriod validates a period string. Empty defaults to current.
func ParsePeriod(s string) (Period, error) {
	if s == "" {
		return PeriodCurrent, nil
	}
	p := Period(s)
	for _, known := range Periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Summary holds the numeric heart of the dashboard response.
type Summary struct {
	TotalFlights           int       `json:"total_flights"`
	UniqueAircraft         int       `json:"unique_aircraft"`
	CurrentlyFlying        int       `json:"currently_flying"`
	MeanAltitude           float64   `json:"mean_altitude"`
	MeanSpeed              float64   `json:"mean_speed"`
	EstimatedDelays        int       `json:"estimated_delays"`
	EstimatedCancellations int       `json:"estimated_cancellations"`
	MeanDelayMinutes       float64   `json:"mean_delay_minutes"`
	ChangeFromPrevious     float64   `json:"change_from_previous"` // percent
	PeakActive             int       `json:"peak_active"`
	PeakTime               time.Time `json:"peak_time,omitempty"`
	TotalObservations      int       `json:"total_observations"`
}

// SiteImpact is one entry in the top-affected-sites rankings.
type SiteImpact struct {
	SiteID           string  `json:"site_id"`
	Name             string  `json:"name,omitempty"`
	MeanDelayMinutes float64 `json:"mean_delay_minutes"`
	CancellationRate float64 `json:"cancellation_rate"`
	Reason           string  `json:"reason"`
}

// TopSites holds the two independent orderings of affected sites.
type TopSites struct {
	ByDelay        []SiteImpact `json:"by_delay"`
	ByCancellation []SiteImpact `json:"by_cancellation"`
}

// TrendPoint is one labeled point in a trend series.
type TrendPoint struct {
	Label         string  `json:"label"`
	Flights       float64 `json:"flights"`
	Delays        float64 `json:"delays"`
	Cancellations float64 `json:"cancellations"`
}

// Response is the aggregator's single normalized output shape. It is always
// well-formed: under total upstream failure the numeric fields are zeroed
// and Caveats explains what degraded.
type Response struct {
	Period           Period           `json:"period"`
	Summary          Summary          `json:"summary"`
	TopAffectedSites TopSites         `json:"top_affected_sites"`
	Trends           []TrendPoint     `json:"trends"`
	Caveats          []string         `json:"caveats"`
	Freshness        livecache.Status `json:"freshness"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// Aggregator composes the live snapshot cache, the rolling history store,
// the airspace status feed, and the historical statistics store into one
// consistent dashboard response.
type Aggregator struct {
	live       *livecache.Cache
	store      *history.Store
	status     provider.StatusFeed
	historical *provider.HistoricalStore
}

// New creates an aggregator. The status feed and historical store may be nil
// when not configured; every read then degrades with a caveat instead of
// failing.
func New(live *livecache.Cache, store *history.Store, status provider.StatusFeed, historical *provider.HistoricalStore) *Aggregator {
	return &Aggregator{
		live:       live,
		store:      store,
		status:     status,
		historical: historical,
	}
}

// DashboardData builds the aggregated view for one period. It never returns
// an error: upstream failures substitute documented defaults and append a
// caveat so callers can tell "zero activity" from "source unavailable".
func (a *Aggregator) DashboardData(ctx context.Context, period Period) *Response {
	resp := &Response{
		Period:      period,
		Caveats:     []string{},
		Freshness:   a.live.Status(),
		GeneratedAt: time.Now(),
	}

	// The remote status feed and the historical store are consulted
	// independently; a failure in either substitutes defaults.
	var (
		wg         sync.WaitGroup
		conditions []provider.SiteCondition
		condErr    error
	)
	if a.status != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, config.AggregatorTimeout)
			defer cancel()
			conditions, condErr = a.status.FetchConditions(cctx)
		}()
	}

	var hist *provider.HistoricalStats
	var histErr error
	if a.historical != nil {
		hist, histErr = a.historical.Get()
	} else {
		histErr = provider.ErrNotLoaded
	}

	wg.Wait()

	if a.status == nil {
		condErr = fmt.Errorf("status feed not configured")
	}
	if condErr != nil {
		conditions = nil
		resp.Caveats = append(resp.Caveats, "airspace status feed unavailable; site delay figures omitted")
	}
	if histErr != nil {
		hist = nil
		resp.Caveats = append(resp.Caveats, "historical statistics unavailable; longer-window figures zeroed")
	}

	if period == PeriodCurrent {
		a.fillCurrent(resp, conditions, hist)
	} else {
		a.fillHistorical(resp, period, hist)
	}

	resp.TopAffectedSites = a.topAffectedSites(conditions, hist)

	return resp
}

// fillCurrent builds the live view: snapshot positions plus history-derived
// daily statistics, with a best-effort delay estimate.
func (a *Aggregator) fillCurrent(resp *Response, conditions []provider.SiteCondition, hist *provider.HistoricalStats) {
	positions := a.live.GetAll()
	daily := a.store.DeriveDailyStats(positions)

	s := &resp.Summary
	s.TotalFlights = daily.UniqueAircraft
	s.UniqueAircraft = daily.UniqueAircraft
	s.CurrentlyFlying = daily.CurrentlyFlying
	s.MeanAltitude = daily.MeanAltitude
	s.MeanSpeed = daily.MeanSpeed
	s.PeakActive = daily.PeakActive
	s.PeakTime = daily.PeakTime
	s.TotalObservations = daily.TotalObservations

	if len(positions) == 0 {
		resp.Caveats = append(resp.Caveats, "live position feed has no data; activity figures are zero")
	}

	if len(conditions) > 0 {
		s.MeanDelayMinutes = meanConditionDelay(conditions)
		s.EstimatedDelays = a.estimateDelaysFromConditions(conditions)
	} else {
		// No authoritative delay source: fall back to the ground-ratio
		// heuristic. This is an inference, not a measurement.
		s.EstimatedDelays = estimateGroundRatioDelays(positions, config.LowAltitudeFeet)
		s.MeanDelayMinutes = meanEstimatedDelayMinutes(positions)
		resp.Caveats = append(resp.Caveats, "delay figures estimated from ground-traffic ratio, not measured")
	}

	if hist != nil {
		if _, latest, ok := hist.LatestMonth(); ok && latest.Flights > 0 {
			rate := latest.Cancellations / latest.Flights
			s.EstimatedCancellations = int(math.Round(rate * float64(s.UniqueAircraft)))
		}
	}

	a.store.RecordDelayTotals(s.EstimatedDelays, s.EstimatedCancellations)

	baseline, baselineDate := a.store.Baseline()
	if baseline > 0 {
		s.ChangeFromPrevious = (float64(s.UniqueAircraft) - float64(baseline)) / float64(baseline) * 100
		resp.Trends = []TrendPoint{
			{Label: baselineDate, Flights: float64(baseline)},
			{Label: "today", Flights: float64(s.UniqueAircraft), Delays: float64(s.EstimatedDelays), Cancellations: float64(s.EstimatedCancellations)},
		}
	} else {
		resp.Trends = []TrendPoint{
			{Label: "today", Flights: float64(s.UniqueAircraft), Delays: float64(s.EstimatedDelays), Cancellations: float64(s.EstimatedCancellations)},
		}
	}
}

// periodScale maps a period to its multiplier over the monthly figure.
func periodScale(period Period) float64 {
	switch period {
	case PeriodWeek:
		return 7.0 / 30.0
	case PeriodQuarter:
		return 3
	default:
		return 1
	}
}

// fillHistorical returns the precomputed aggregates for the period, scaled
// from the most recent month (or taken from the quarterly table when one
// exists). These figures are a historical reference snapshot, not live.
func (a *Aggregator) fillHistorical(resp *Response, period Period, hist *provider.HistoricalStats) {
	if hist == nil {
		return
	}

	key, agg, ok := hist.LatestMonth()
	if !ok {
		resp.Caveats = append(resp.Caveats, "historical dataset contains no monthly aggregates")
		return
	}

	scale := periodScale(period)
	if period == PeriodQuarter {
		if qKey, qAgg, qOK := hist.LatestQuarter(); qOK {
			key, agg, scale = qKey, qAgg, 1
		} else {
			resp.Caveats = append(resp.Caveats,
				fmt.Sprintf("no quarterly aggregates available, quarter extrapolated from latest month (%s)", key))
		}
	}

	s := &resp.Summary
	s.TotalFlights = int(math.Round(agg.Flights * scale))
	s.UniqueAircraft = s.TotalFlights
	s.EstimatedDelays = int(math.Round(agg.Delays * scale))
	s.EstimatedCancellations = int(math.Round(agg.Cancellations * scale))
	s.MeanDelayMinutes = agg.MeanDelayMinutes

	resp.Trends = monthlyTrends(hist)
	resp.Caveats = append(resp.Caveats,
		fmt.Sprintf("figures are a historical reference snapshot (%s), not live data", key))
}

// monthlyTrends converts the monthly table into a chronological trend
// series, capped to the most recent twelve months.
func monthlyTrends(hist *provider.HistoricalStats) []TrendPoint {
	keys := make([]string, 0, len(hist.Months))
	for k := range hist.Months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 12 {
		keys = keys[len(keys)-12:]
	}

	trends := make([]TrendPoint, 0, len(keys))
	for _, k := range keys {
		m := hist.Months[k]
		trends = append(trends, TrendPoint{
			Label:         k,
			Flights:       m.Flights,
			Delays:        m.Delays,
			Cancellations: m.Cancellations,
		})
	}
	return trends
}

// topAffectedSites merges live site conditions with historical per-site
// figures and ranks the result two ways, each capped independently.
func (a *Aggregator) topAffectedSites(conditions []provider.SiteCondition, hist *provider.HistoricalStats) TopSites {
	impacts := make(map[string]*SiteImpact)

	if hist != nil {
		for _, sh := range hist.Sites {
			impacts[sh.SiteID] = &SiteImpact{
				SiteID:           sh.SiteID,
				Name:             sh.Name,
				MeanDelayMinutes: sh.MeanDelayMinutes,
				CancellationRate: sh.CancellationRate,
			}
		}
	}

	// Live conditions supersede historical delay figures.
	for _, c := range conditions {
		imp, ok := impacts[c.SiteID]
		if !ok {
			imp = &SiteImpact{SiteID: c.SiteID}
			impacts[c.SiteID] = imp
		}
		imp.MeanDelayMinutes = c.MeanDelayMinutes
	}

	all := make([]SiteImpact, 0, len(impacts))
	for _, imp := range impacts {
		all = append(all, *imp)
	}

	byDelay := make([]SiteImpact, len(all))
	copy(byDelay, all)
	sort.Slice(byDelay, func(i, j int) bool {
		if byDelay[i].MeanDelayMinutes != byDelay[j].MeanDelayMinutes {
			return byDelay[i].MeanDelayMinutes > byDelay[j].MeanDelayMinutes
		}
		return byDelay[i].SiteID < byDelay[j].SiteID
	})
	if len(byDelay) > config.TopSiteLimit {
		byDelay = byDelay[:config.TopSiteLimit]
	}
	for i := range byDelay {
		byDelay[i].Reason = delayReason(byDelay[i].MeanDelayMinutes)
	}

	byCancellation := make([]SiteImpact, len(all))
	copy(byCancellation, all)
	sort.Slice(byCancellation, func(i, j int) bool {
		if byCancellation[i].CancellationRate != byCancellation[j].CancellationRate {
			return byCancellation[i].CancellationRate > byCancellation[j].CancellationRate
		}
		return byCancellation[i].SiteID < byCancellation[j].SiteID
	})
	if len(byCancellation) > config.TopSiteLimit {
		byCancellation = byCancellation[:config.TopSiteLimit]
	}
	for i := range byCancellation {
		byCancellation[i].Reason = cancellationReason(byCancellation[i].CancellationRate)
	}

	return TopSites{ByDelay: byDelay, ByCancellation: byCancellation}
}

// estimateDelaysFromConditions scales the grounded aircraft near each
// reporting site by that site's delay severity.
func (a *Aggregator) estimateDelaysFromConditions(conditions []provider.SiteCondition) int {
	total := 0.0
	for _, c := range conditions {
		grounded := 0
		for _, p := range a.live.GetNearSite(c.SiteID) {
			if p.OnGround {
				grounded++
			}
		}
		total += float64(grounded) * delaySeverityShare(c.MeanDelayMinutes)
	}
	return int(math.Round(total))
}

// delaySeverityShare maps a site's mean delay to the share of its grounded
// aircraft assumed delayed. Total and deterministic.
func delaySeverityShare(meanDelayMinutes float64) float64 {
	switch {
	case meanDelayMinutes > 30:
		return 0.5
	case meanDelayMinutes > 15:
		return 0.25
	case meanDelayMinutes > 0:
		return 0.1
	default:
		return 0
	}
}

// meanConditionDelay averages the reported per-site mean delays.
func meanConditionDelay(conditions []provider.SiteCondition) float64 {
	if len(conditions) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range conditions {
		sum += c.MeanDelayMinutes
	}
	return sum / float64(len(conditions))
}
