package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/fieldsim-core/internal/device"
)

// Period is a usage analytics window ending now.
type Period string

// Supported periods.
const (
	PeriodDay     Period = "24h"
	PeriodWeek    Period = "7d"
	PeriodMonth   Period = "30d"
	PeriodQuarter Period = "90d"
)

// DefaultPeriod is used when no period is requested.
const DefaultPeriod = PeriodWeek

// trendTolerance is the relative change between the two halves of the
// daily series below which usage counts as stable.
const trendTolerance = 0.10

var periodDays = map[Period]int{
	PeriodDay:     1,
	PeriodWeek:    7,
	PeriodMonth:   30,
	PeriodQuarter: 90,
}

// ParsePeriod parses s, returning DefaultPeriod for an empty string.
func ParsePeriod(s string) (Period, error) {
	if s == "" {
		return DefaultPeriod, nil
	}
	p := Period(s)
	if _, ok := periodDays[p]; !ok {
		return "", fmt.Errorf("%w: %q (want 24h, 7d, 30d or 90d)", ErrInvalidPeriod, s)
	}
	return p, nil
}

// Days returns the number of days the period spans.
func (p Period) Days() int {
	return periodDays[p]
}

// Duration returns the period's length.
func (p Period) Duration() time.Duration {
	return time.Duration(p.Days()) * 24 * time.Hour
}

// Trend is the direction of water use across a period.
type Trend string

// Trend directions.
const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// DailyUsage is the water used by completed events started on one UTC date.
type DailyUsage struct {
	Date      string  `json:"date"`
	WaterUsed float64 `json:"water_used"`
	Events    int     `json:"events"`
}

// DeviceUsage is one device's share of a usage report.
type DeviceUsage struct {
	SensorID     string  `json:"sensor_id"`
	Name         string  `json:"name"`
	WaterUsed    float64 `json:"water_used"`
	Events       int     `json:"events"`
	ActiveEvents int     `json:"active_events"`
}

// Usage is the result of a usage analytics query.
type Usage struct {
	Period            Period        `json:"period"`
	Start             time.Time     `json:"start"`
	End               time.Time     `json:"end"`
	TotalWaterUsed    float64       `json:"total_water_used"`
	AverageDailyUsage float64       `json:"average_daily_usage"`
	TotalEvents       int           `json:"total_events"`
	ActiveEvents      int           `json:"active_events"`
	Daily             []DailyUsage  `json:"daily"`
	Devices           []DeviceUsage `json:"devices"`
	Trend             Trend         `json:"trend"`
}

// UsageAnalytics summarises water use by the given devices over period.
//
// Only completed events count towards water totals; active events are
// counted separately. The daily series covers every UTC date the period
// touches, oldest first, with zero entries for idle days.
func (a *Aggregator) UsageAnalytics(ctx context.Context, ids []string, period Period) (*Usage, error) {
	if period == "" {
		period = DefaultPeriod
	}
	if _, ok := periodDays[period]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	end := a.clock.Now().UTC()
	start := end.Add(-period.Duration())

	daily, index := dailySeries(start, end)
	usage := &Usage{
		Period:  period,
		Start:   start,
		End:     end,
		Daily:   daily,
		Devices: []DeviceUsage{},
	}

	for _, id := range dedupe(ids) {
		dev, events, err := a.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if dev == nil {
			continue
		}

		du := DeviceUsage{SensorID: dev.SensorID, Name: dev.Name}
		for _, ev := range events {
			if ev.StartTime.Before(start) || ev.StartTime.After(end) {
				continue
			}
			if ev.Status != device.EventCompleted {
				du.ActiveEvents++
				continue
			}
			du.WaterUsed += ev.WaterUsed
			du.Events++
			day := &usage.Daily[index[dateKey(ev.StartTime)]]
			day.WaterUsed += ev.WaterUsed
			day.Events++
		}
		du.WaterUsed = round2(du.WaterUsed)

		usage.TotalWaterUsed += du.WaterUsed
		usage.TotalEvents += du.Events
		usage.ActiveEvents += du.ActiveEvents
		usage.Devices = append(usage.Devices, du)
	}

	for i := range usage.Daily {
		usage.Daily[i].WaterUsed = round2(usage.Daily[i].WaterUsed)
	}
	usage.TotalWaterUsed = round2(usage.TotalWaterUsed)
	usage.AverageDailyUsage = round2(usage.TotalWaterUsed / float64(period.Days()))
	usage.Trend = trendOf(usage.Daily)
	return usage, nil
}

// dailySeries returns one zero entry per UTC date in [start, end] and an
// index from date to position.
func dailySeries(start, end time.Time) ([]DailyUsage, map[string]int) {
	var series []DailyUsage
	index := make(map[string]int)
	last := truncateDay(end)
	for day := truncateDay(start); !day.After(last); day = day.AddDate(0, 0, 1) {
		key := dateKey(day)
		index[key] = len(series)
		series = append(series, DailyUsage{Date: key})
	}
	return series, index
}

// trendOf compares the totals of the first and second halves of series.
// With an odd length the middle day belongs to neither half.
func trendOf(series []DailyUsage) Trend {
	half := len(series) / 2
	if half == 0 {
		return TrendStable
	}
	var first, second float64
	for i := range half {
		first += series[i].WaterUsed
		second += series[len(series)-half+i].WaterUsed
	}

	switch {
	case first == 0 && second == 0:
		return TrendStable
	case second > first*(1+trendTolerance):
		return TrendIncreasing
	case second < first*(1-trendTolerance):
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
