package steps

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/trip"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "json fence", in: "here:\n```json\n{\"a\":1}\n```\nbye", want: `{"a":1}`},
		{name: "plain fence", in: "```\n{\"a\":2}\n```", want: `{"a":2}`},
		{name: "raw", in: "  {\"a\":3}  ", want: `{"a":3}`},
		{name: "inline with prose", in: "当然！计划如下 {\"a\":{\"b\":4}} 祝旅途愉快", want: `{"a":{"b":4}}`},
		{name: "fence with language tag", in: "```JSON\n{\"a\":5}\n```", want: `{"a":5}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, got)
		})
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	_, err := ExtractJSON("sorry, I cannot help with that")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = ExtractJSON("{ broken")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestParsePlannerResponseInlineJSON(t *testing.T) {
	req := requestForDays(1)
	content := `Here is your plan: {"days":[{"attractions":[{"name":"西湖"}],"meals":[{"name":"小吃","estimated_cost":"25"}]}],"budget":{"total_attractions":10,"total_hotels":200,"total_meals":25,"total_transportation":5,"total":0}} Enjoy!`

	it, err := ParsePlannerResponse(content, req)
	require.NoError(t, err)
	require.Len(t, it.Days, 1)
	d := it.Days[0]
	assert.Equal(t, req.StartDate, d.Date)
	assert.Equal(t, req.Transportation, d.Transportation)
	assert.Equal(t, req.Accommodation, d.Accommodation)
	assert.Equal(t, 120, d.Attractions[0].VisitDuration)
	assert.Equal(t, trip.Location{}, d.Attractions[0].Location)
	assert.Equal(t, trip.MealLunch, d.Meals[0].Type)
	assert.Equal(t, float64(25), d.Meals[0].EstimatedCost)
	assert.Equal(t, req.City, it.City)
	assert.Equal(t, req.StartDate, it.StartDate)
	assert.Equal(t, req.EndDate, it.EndDate)
	assert.Equal(t, float64(240), it.Budget.Total)
	assert.True(t, it.Budget.Consistent())
}

func TestParsePlannerResponseKeepsExplicitValues(t *testing.T) {
	req := requestForDays(2)
	content := "```json\n" + `{"city":"Hangzhou","days":[
		{"date":"2025-06-01","day_index":0,"transportation":"walk","accommodation":"","attractions":[{"name":"a","visit_duration":45,"ticket_price":60}],"meals":[{"type":"breakfast","name":"粥","estimated_cost":12}]},
		{"date":"2025-06-02","day_index":1,"attractions":[],"meals":[]}
	],"budget":{"total_attractions":60,"total_hotels":0,"total_meals":12,"total_transportation":0,"total":72}}` + "\n```"

	it, err := ParsePlannerResponse(content, req)
	require.NoError(t, err)
	assert.Equal(t, "Hangzhou", it.City)
	assert.Equal(t, "walk", it.Days[0].Transportation)
	assert.Equal(t, "", it.Days[0].Accommodation)
	assert.Equal(t, 45, it.Days[0].Attractions[0].VisitDuration)
	assert.Equal(t, float64(60), it.Days[0].Attractions[0].TicketPrice)
	assert.Equal(t, trip.MealBreakfast, it.Days[0].Meals[0].Type)
	assert.Equal(t, 1, it.Days[1].DayIndex)
	assert.Equal(t, float64(72), it.Budget.Total)
}

func TestParsePlannerResponseIndexesDaysByPosition(t *testing.T) {
	req := requestForDays(3)
	content := `{"days":[
		{"day_index":1,"attractions":[],"meals":[]},
		{"day_index":1,"attractions":[],"meals":[]},
		{"day_index":"7","attractions":[],"meals":[]}
	],"budget":{}}`

	it, err := ParsePlannerResponse(content, req)
	require.NoError(t, err)
	require.Len(t, it.Days, 3)
	for i, d := range it.Days {
		assert.Equal(t, i, d.DayIndex)
	}
}

func TestParsePlannerResponseRejects(t *testing.T) {
	req := requestForDays(3)
	cases := map[string]string{
		"no json":       "I could not plan this trip.",
		"wrong days":    `{"days":[{}]}`,
		"bad number":    `{"days":[{},{},{}],"budget":{"total_meals":"lots"}}`,
		"days not list": `{"days":"three"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlannerResponse(content, req)
			assert.Error(t, err)
		})
	}
}

func TestBuildPlannerInput(t *testing.T) {
	req := requestForDays(2)
	var attractions []trip.Attraction
	for i := 0; i < 20; i++ {
		attractions = append(attractions, trip.Attraction{Name: "景点" + string(rune('A'+i)), Address: "路", VisitDuration: 90})
	}
	weather := []trip.Weather{
		{Date: "2025-06-01", DayWeather: "晴", DayTemp: 30, NightWeather: "多云", NightTemp: 18.5},
		{Date: "2025-06-02"},
		{Date: "2025-06-03"},
	}
	var hotels []trip.Hotel
	for i := 0; i < 12; i++ {
		hotels = append(hotels, trip.Hotel{Name: "酒店", Address: "街"})
	}

	out := BuildPlannerInput(req, attractions, weather, hotels)
	assert.Contains(t, out, "目的地: 杭州")
	assert.Contains(t, out, "天数: 2")
	assert.Contains(t, out, "旅行偏好: 无")
	assert.Contains(t, out, "15. 景点O - 路 (游览约90分钟)")
	assert.NotContains(t, out, "16. ")
	assert.Contains(t, out, "2025-06-01: 白天晴 30°C, 夜间多云 18.5°C")
	assert.Contains(t, out, "2025-06-02:")
	assert.NotContains(t, out, "2025-06-03:")
	assert.Contains(t, out, "10. 酒店 - 街")
	assert.NotContains(t, out, "11. 酒店")

	req.Preferences = []string{"history", "food"}
	bare := BuildPlannerInput(req, nil, nil, nil)
	assert.Contains(t, bare, "旅行偏好: history, food")
	assert.NotContains(t, bare, "天气信息")
	assert.NotContains(t, bare, "可选酒店")
	assert.True(t, strings.HasSuffix(bare, "景点信息:"))
}
