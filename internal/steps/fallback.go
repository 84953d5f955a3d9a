package steps

import (
	"fmt"

	"tripplanner/internal/trip"
)

// Fixed amounts used by the fallback itinerary.
const (
	FallbackAttractionsPerDay = 2
	FallbackTicketPrice       = 50
	FallbackHotelCost         = 400
	FallbackTransportation    = 100
)

var fallbackMeals = []trip.Meal{
	{Type: trip.MealBreakfast, Name: "当地特色早餐", EstimatedCost: 30},
	{Type: trip.MealLunch, Name: "当地特色午餐", EstimatedCost: 60},
	{Type: trip.MealDinner, Name: "当地特色晚餐", EstimatedCost: 100},
}

// FallbackItinerary builds the deterministic itinerary used when synthesis is
// skipped or fails. It depends on req only.
func FallbackItinerary(req trip.Request) *trip.Itinerary {
	start, _ := req.Start()
	days := make([]trip.DayPlan, 0, req.TravelDays)
	var budget trip.Budget
	for i := 0; i < req.TravelDays; i++ {
		attractions := make([]trip.Attraction, 0, FallbackAttractionsPerDay)
		for j := 1; j <= FallbackAttractionsPerDay; j++ {
			attractions = append(attractions, trip.Attraction{
				Name:          fmt.Sprintf("%s热门景点%d", req.City, j),
				Address:       req.City,
				VisitDuration: DefaultVisitDuration,
				Description:   req.City + "的著名景点",
				TicketPrice:   FallbackTicketPrice,
			})
			budget.TotalAttractions += FallbackTicketPrice
		}
		meals := make([]trip.Meal, len(fallbackMeals))
		copy(meals, fallbackMeals)
		for _, m := range meals {
			budget.TotalMeals += m.EstimatedCost
		}
		budget.TotalHotels += FallbackHotelCost

		days = append(days, trip.DayPlan{
			Date:           dayDate(start, i),
			DayIndex:       i,
			Description:    fmt.Sprintf("第%d天：探索%s", i+1, req.City),
			Transportation: req.Transportation,
			Accommodation:  req.Accommodation,
			Hotel: trip.Hotel{
				Name:          req.City + "酒店推荐",
				Address:       req.City,
				EstimatedCost: FallbackHotelCost,
			},
			Attractions: attractions,
			Meals:       meals,
		})
	}
	budget.TotalTransportation = FallbackTransportation

	return &trip.Itinerary{
		City:               req.City,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		Days:               days,
		WeatherInfo:        []trip.Weather{},
		OverallSuggestions: fmt.Sprintf("这是为您准备的%s%d日游备用行程。建议提前查询各景点开放时间和预订酒店。", req.City, req.TravelDays),
		Budget:             budget.Normalize(),
	}
}
