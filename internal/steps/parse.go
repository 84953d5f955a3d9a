package steps

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tripplanner/internal/trip"
)

var ErrNoJSON = errors.New("no JSON object in engine response")

// ExtractJSON pulls the JSON document out of free-form engine text. A
// ```json fence wins, then any fence, then the raw text. Text that still is
// not valid JSON is narrowed to its outermost {...} span.
func ExtractJSON(content string) (string, error) {
	body := content
	if _, after, ok := strings.Cut(content, "```json"); ok {
		body, _, _ = strings.Cut(after, "```")
	} else if _, after, ok := strings.Cut(content, "```"); ok {
		body, _, _ = strings.Cut(after, "```")
	}
	body = strings.TrimSpace(body)
	if json.Valid([]byte(body)) {
		return body, nil
	}
	first := strings.Index(body, "{")
	last := strings.LastIndex(body, "}")
	if first >= 0 && last > first {
		if obj := body[first : last+1]; json.Valid([]byte(obj)) {
			return obj, nil
		}
	}
	return "", ErrNoJSON
}

// number accepts a JSON number or a numeric string; engines emit both.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*n = number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = number(v)
	return nil
}

type plannerDoc struct {
	City   string       `json:"city"`
	Days   []plannerDay `json:"days"`
	Budget struct {
		TotalAttractions    number `json:"total_attractions"`
		TotalHotels         number `json:"total_hotels"`
		TotalMeals          number `json:"total_meals"`
		TotalTransportation number `json:"total_transportation"`
	} `json:"budget"`
	OverallSuggestions string `json:"overall_suggestions"`
}

type plannerDay struct {
	Date           string  `json:"date"`
	Description    string  `json:"description"`
	Transportation *string `json:"transportation"`
	Accommodation  *string `json:"accommodation"`
	Hotel          struct {
		Name          string `json:"name"`
		Address       string `json:"address"`
		EstimatedCost number `json:"estimated_cost"`
	} `json:"hotel"`
	Attractions []struct {
		Name          string  `json:"name"`
		Address       string  `json:"address"`
		VisitDuration *number `json:"visit_duration"`
		Description   string  `json:"description"`
		TicketPrice   number  `json:"ticket_price"`
	} `json:"attractions"`
	Meals []struct {
		Type          string `json:"type"`
		Name          string `json:"name"`
		Description   string `json:"description"`
		EstimatedCost number `json:"estimated_cost"`
	} `json:"meals"`
}

// ParsePlannerResponse decodes engine output into an itinerary, filling
// defaults from req. The result always has one day plan per travel day and a
// normalized budget; anything else is an error.
func ParsePlannerResponse(content string, req trip.Request) (*trip.Itinerary, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	var doc plannerDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode planner response: %w", err)
	}
	if len(doc.Days) != req.TravelDays {
		return nil, fmt.Errorf("planner returned %d day plans for a %d-day trip", len(doc.Days), req.TravelDays)
	}
	start, _ := req.Start()

	it := &trip.Itinerary{
		City:               strings.TrimSpace(doc.City),
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		Days:               make([]trip.DayPlan, 0, len(doc.Days)),
		WeatherInfo:        []trip.Weather{},
		OverallSuggestions: doc.OverallSuggestions,
		Budget: trip.Budget{
			TotalAttractions:    float64(doc.Budget.TotalAttractions),
			TotalHotels:         float64(doc.Budget.TotalHotels),
			TotalMeals:          float64(doc.Budget.TotalMeals),
			TotalTransportation: float64(doc.Budget.TotalTransportation),
		}.Normalize(),
	}
	if it.City == "" {
		it.City = req.City
	}
	for i, d := range doc.Days {
		day := trip.DayPlan{
			Date:           strings.TrimSpace(d.Date),
			DayIndex:       i,
			Description:    d.Description,
			Transportation: req.Transportation,
			Accommodation:  req.Accommodation,
			Hotel: trip.Hotel{
				Name:          d.Hotel.Name,
				Address:       d.Hotel.Address,
				EstimatedCost: float64(d.Hotel.EstimatedCost),
			},
			Attractions: make([]trip.Attraction, 0, len(d.Attractions)),
			Meals:       make([]trip.Meal, 0, len(d.Meals)),
		}
		if day.Date == "" && !start.IsZero() {
			day.Date = dayDate(start, i)
		}
		if d.Transportation != nil {
			day.Transportation = *d.Transportation
		}
		if d.Accommodation != nil {
			day.Accommodation = *d.Accommodation
		}
		for _, a := range d.Attractions {
			visit := DefaultVisitDuration
			if a.VisitDuration != nil {
				visit = int(*a.VisitDuration)
			}
			day.Attractions = append(day.Attractions, trip.Attraction{
				Name:          a.Name,
				Address:       a.Address,
				VisitDuration: visit,
				Description:   a.Description,
				TicketPrice:   float64(a.TicketPrice),
			})
		}
		for _, m := range d.Meals {
			typ := strings.TrimSpace(m.Type)
			if typ == "" {
				typ = trip.MealLunch
			}
			day.Meals = append(day.Meals, trip.Meal{
				Type:          typ,
				Name:          m.Name,
				Description:   m.Description,
				EstimatedCost: float64(m.EstimatedCost),
			})
		}
		it.Days = append(it.Days, day)
	}
	return it, nil
}

// dayDate is the date of the i-th travel day.
func dayDate(start time.Time, i int) string {
	return start.AddDate(0, 0, i).Format(trip.DateLayout)
}
