package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"tripplanner/internal/provider"
	"tripplanner/internal/trip"
)

var fastRetry = provider.RetryPolicy{Attempts: 3, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

func beijingRequest() trip.Request {
	return trip.Request{
		City:           "Beijing",
		StartDate:      "2025-06-01",
		EndDate:        "2025-06-03",
		TravelDays:     3,
		Transportation: "public_transit",
		Accommodation:  "budget_hotel",
		Preferences:    []string{"history", "food"},
	}
}

// requestForDays builds a valid request spanning n days.
func requestForDays(n int) trip.Request {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return trip.Request{
		City:           "杭州",
		StartDate:      start.Format(trip.DateLayout),
		EndDate:        start.AddDate(0, 0, n-1).Format(trip.DateLayout),
		TravelDays:     n,
		Transportation: "公共交通",
		Accommodation:  "经济型酒店",
	}
}

// fakeGateway scripts provider answers and counts calls.
type fakeGateway struct {
	mu sync.Mutex

	places    []provider.RawPlace
	placesErr error
	casts     []provider.RawCast
	castsErr  error
	hotels    []provider.RawPlace
	hotelsErr error
	panicPOI  bool
	// failFirst makes the first n calls of every method fail transiently.
	failFirst int

	poiCalls, forecastCalls, lodgingCalls int
}

func (g *fakeGateway) SearchPOI(ctx context.Context, q provider.PlaceQuery) ([]provider.RawPlace, error) {
	g.mu.Lock()
	g.poiCalls++
	n := g.poiCalls
	g.mu.Unlock()
	if g.panicPOI {
		panic("poi exploded")
	}
	if n <= g.failFirst {
		return nil, fmt.Errorf("transient %d", n)
	}
	return g.places, g.placesErr
}

func (g *fakeGateway) Forecast(ctx context.Context, city string) ([]provider.RawCast, error) {
	g.mu.Lock()
	g.forecastCalls++
	n := g.forecastCalls
	g.mu.Unlock()
	if n <= g.failFirst {
		return nil, fmt.Errorf("transient %d", n)
	}
	return g.casts, g.castsErr
}

func (g *fakeGateway) SearchLodging(ctx context.Context, q provider.PlaceQuery) ([]provider.RawPlace, error) {
	g.mu.Lock()
	g.lodgingCalls++
	n := g.lodgingCalls
	g.mu.Unlock()
	if n <= g.failFirst {
		return nil, fmt.Errorf("transient %d", n)
	}
	return g.hotels, g.hotelsErr
}

func (g *fakeGateway) calls() (poi, forecast, lodging int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poiCalls, g.forecastCalls, g.lodgingCalls
}

func samplePlaces() []provider.RawPlace {
	return []provider.RawPlace{
		{ID: "B1", Name: "故宫博物院", Type: "风景名胜", Address: "景山前街4号", Location: "116.397,39.918"},
		{ID: "B2", Name: "天坛公园", Type: "", Address: "天坛东里甲1号", Location: ""},
	}
}

func sampleCasts() []provider.RawCast {
	return []provider.RawCast{
		{Date: "2025-06-01", DayWeather: "晴", NightWeather: "多云", DayTemp: "30", NightTemp: "18", DayWind: "南", DayPower: "1-3"},
		{Date: "2025-06-02", DayWeather: "阴", NightWeather: "小雨", DayTemp: "n/a", NightTemp: "17", DayWind: "北", DayPower: "≤3"},
	}
}

var daysLine = regexp.MustCompile(`天数: (\d+)`)

// planEngine answers with a well-formed plan sized to the requested day count.
type planEngine struct {
	mu    sync.Mutex
	calls int
}

func (e *planEngine) Name() string { return "plan" }
func (e *planEngine) Close() error { return nil }

func (e *planEngine) Generate(ctx context.Context, system, user string) (string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	m := daysLine.FindStringSubmatch(user)
	if m == nil {
		return "", fmt.Errorf("no day count in prompt")
	}
	n, _ := strconv.Atoi(m[1])
	days := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		days = append(days, map[string]any{
			"day_index":   i,
			"description": fmt.Sprintf("day %d", i+1),
			"hotel":       map[string]any{"name": "西湖酒店", "estimated_cost": 300},
			"attractions": []map[string]any{{"name": "西湖", "ticket_price": 0}},
			"meals":       []map[string]any{{"type": "dinner", "name": "楼外楼", "estimated_cost": 150}},
		})
	}
	doc := map[string]any{
		"days": days,
		"budget": map[string]any{
			"total_attractions":    0,
			"total_hotels":         300 * n,
			"total_meals":          150 * n,
			"total_transportation": 80,
			"total":                1,
		},
		"overall_suggestions": "enjoy",
	}
	raw, _ := json.Marshal(doc)
	return "好的，以下是行程：\n```json\n" + string(raw) + "\n```", nil
}

func (e *planEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
