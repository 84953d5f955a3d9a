package trip

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of every date in a request or itinerary.
const DateLayout = "2006-01-02"

const (
	MinTravelDays = 1
	MaxTravelDays = 30
)

// Request holds the immutable parameters of one planning run.
type Request struct {
	City           string   `json:"city" validate:"notblank"`
	StartDate      string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	TravelDays     int      `json:"travel_days" validate:"min=1,max=30"`
	Transportation string   `json:"transportation"`
	Accommodation  string   `json:"accommodation"`
	Preferences    []string `json:"preferences"`
}

// ValidationError reports a malformed request. It is returned before any step runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid trip request: " + e.Reason
	}
	return fmt.Sprintf("invalid trip request: %s: %s", e.Field, e.Reason)
}

// Normalize trims free-text fields and derives TravelDays from the date span
// when the caller left it unset. It does not validate.
func (r Request) Normalize() Request {
	r.City = strings.TrimSpace(r.City)
	r.StartDate = strings.TrimSpace(r.StartDate)
	r.EndDate = strings.TrimSpace(r.EndDate)
	r.Transportation = strings.TrimSpace(r.Transportation)
	r.Accommodation = strings.TrimSpace(r.Accommodation)
	prefs := make([]string, 0, len(r.Preferences))
	for _, p := range r.Preferences {
		if p = strings.TrimSpace(p); p != "" {
			prefs = append(prefs, p)
		}
	}
	r.Preferences = prefs
	if r.TravelDays == 0 {
		if span, err := r.span(); err == nil {
			r.TravelDays = span
		}
	}
	return r
}

// Validate enforces the request invariants: a non-empty city, start <= end,
// travel days equal to the inclusive date span and within [1, 30]. The first
// violated rule is reported as a *ValidationError.
func (r Request) Validate() error {
	return validateRequest(r)
}

// Start returns the parsed start date.
func (r Request) Start() (time.Time, error) {
	return time.Parse(DateLayout, r.StartDate)
}

// PrimaryPreference returns the first preference, or def when there is none.
func (r Request) PrimaryPreference(def string) string {
	if len(r.Preferences) > 0 && strings.TrimSpace(r.Preferences[0]) != "" {
		return strings.TrimSpace(r.Preferences[0])
	}
	return def
}

func (r Request) span() (int, error) {
	start, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		return 0, err
	}
	end, err := time.Parse(DateLayout, r.EndDate)
	if err != nil {
		return 0, err
	}
	return daysBetween(start, end), nil
}

func daysBetween(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}
