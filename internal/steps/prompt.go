package steps

import (
	"fmt"
	"strconv"
	"strings"

	"tripplanner/internal/trip"
)

// Limits on how much gathered data is put in front of the engine.
const (
	MaxPromptAttractions = 15
	MaxPromptHotels      = 10
)

const PlannerSystemPrompt = `你是专业的行程规划专家。请根据提供的景点、天气和酒店信息，生成详细的旅行计划。

要求：
1. 每天安排2-3个景点，考虑距离和游览时间
2. 每天包含早中晚三餐推荐
3. 根据天气调整户外活动安排
4. 推荐合适的酒店（从提供的酒店列表中选择）
5. 计算预算，包括门票、餐饮、住宿、交通
6. days 数组的长度必须等于旅行天数

输出格式必须是JSON：
{
  "city": "城市名称",
  "days": [
    {
      "date": "YYYY-MM-DD",
      "day_index": 0,
      "description": "当日行程概述",
      "transportation": "交通方式",
      "accommodation": "住宿类型",
      "hotel": {
        "name": "酒店名称",
        "address": "酒店地址",
        "estimated_cost": 400
      },
      "attractions": [
        {
          "name": "景点名称",
          "address": "地址",
          "visit_duration": 120,
          "description": "景点描述",
          "ticket_price": 60
        }
      ],
      "meals": [
        {"type": "breakfast", "name": "早餐", "estimated_cost": 30},
        {"type": "lunch", "name": "午餐", "estimated_cost": 60},
        {"type": "dinner", "name": "晚餐", "estimated_cost": 100}
      ]
    }
  ],
  "budget": {
    "total_attractions": 0,
    "total_hotels": 0,
    "total_meals": 0,
    "total_transportation": 0,
    "total": 0
  },
  "overall_suggestions": "总体建议"
}`

// BuildPlannerInput renders the user content for the engine.
func BuildPlannerInput(req trip.Request, attractions []trip.Attraction, weather []trip.Weather, hotels []trip.Hotel) string {
	prefs := "无"
	if len(req.Preferences) > 0 {
		prefs = strings.Join(req.Preferences, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "目的地: %s\n", req.City)
	fmt.Fprintf(&b, "旅行日期: %s 至 %s\n", req.StartDate, req.EndDate)
	fmt.Fprintf(&b, "天数: %d\n", req.TravelDays)
	fmt.Fprintf(&b, "交通方式: %s\n", req.Transportation)
	fmt.Fprintf(&b, "住宿偏好: %s\n", req.Accommodation)
	fmt.Fprintf(&b, "旅行偏好: %s\n", prefs)
	b.WriteString("\n景点信息:")
	for i, a := range head(attractions, MaxPromptAttractions) {
		fmt.Fprintf(&b, "\n%d. %s - %s (游览约%d分钟)", i+1, a.Name, a.Address, a.VisitDuration)
	}
	if len(weather) > 0 {
		b.WriteString("\n\n天气信息:")
		for _, w := range head(weather, req.TravelDays) {
			fmt.Fprintf(&b, "\n%s: 白天%s %s°C, 夜间%s %s°C", w.Date, w.DayWeather, formatTemp(w.DayTemp), w.NightWeather, formatTemp(w.NightTemp))
		}
	}
	if len(hotels) > 0 {
		b.WriteString("\n\n可选酒店:")
		for i, h := range head(hotels, MaxPromptHotels) {
			fmt.Fprintf(&b, "\n%d. %s - %s", i+1, h.Name, h.Address)
		}
	}
	return b.String()
}

func head[T any](in []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(in) > n {
		return in[:n]
	}
	return in
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
