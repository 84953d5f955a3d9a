package trip

// Location is a WGS-84 style coordinate pair as reported by the mapping service.
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Attraction is a point of interest, either gathered from the POI provider or
// chosen for a day plan by synthesis.
type Attraction struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Location      Location `json:"location"`
	VisitDuration int      `json:"visit_duration"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty"`
	POIID         string   `json:"poi_id,omitempty"`
	TicketPrice   float64  `json:"ticket_price"`
}

// Weather is a single forecast day.
type Weather struct {
	Date          string  `json:"date"`
	DayWeather    string  `json:"day_weather"`
	NightWeather  string  `json:"night_weather"`
	DayTemp       float64 `json:"day_temp"`
	NightTemp     float64 `json:"night_temp"`
	WindDirection string  `json:"wind_direction"`
	WindPower     string  `json:"wind_power"`
}

// Hotel is a lodging option. EstimatedCost is only set once a hotel is chosen
// for a day plan.
type Hotel struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Location      Location `json:"location"`
	Type          string   `json:"type,omitempty"`
	EstimatedCost float64  `json:"estimated_cost"`
}

// Meal types used by the planner. The itinerary does not require exactly one of each.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
)

type Meal struct {
	Type          string  `json:"type"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	EstimatedCost float64 `json:"estimated_cost"`
}

type DayPlan struct {
	Date           string       `json:"date"`
	DayIndex       int          `json:"day_index"`
	Description    string       `json:"description"`
	Transportation string       `json:"transportation"`
	Accommodation  string       `json:"accommodation"`
	Hotel          Hotel        `json:"hotel"`
	Attractions    []Attraction `json:"attractions"`
	Meals          []Meal       `json:"meals"`
}

// Budget holds the four category subtotals and their grand total.
type Budget struct {
	TotalAttractions    float64 `json:"total_attractions"`
	TotalHotels         float64 `json:"total_hotels"`
	TotalMeals          float64 `json:"total_meals"`
	TotalTransportation float64 `json:"total_transportation"`
	Total               float64 `json:"total"`
}

// Normalize recomputes Total from the subtotals and returns the result.
func (b Budget) Normalize() Budget {
	b.Total = b.TotalAttractions + b.TotalHotels + b.TotalMeals + b.TotalTransportation
	return b
}

// Consistent reports whether Total equals the sum of the subtotals.
func (b Budget) Consistent() bool {
	return b.Total == b.TotalAttractions+b.TotalHotels+b.TotalMeals+b.TotalTransportation
}

type Itinerary struct {
	City               string    `json:"city"`
	StartDate          string    `json:"start_date"`
	EndDate            string    `json:"end_date"`
	Days               []DayPlan `json:"days"`
	WeatherInfo        []Weather `json:"weather_info"`
	OverallSuggestions string    `json:"overall_suggestions"`
	Budget             Budget    `json:"budget"`
}
