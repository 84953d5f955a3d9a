package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultAMapBaseURL = "https://restapi.amap.com"

// lodgingTypes is the provider's category code for accommodation services.
const lodgingTypes = "100000"

// StatusError reports a non-success answer from the mapping service, either an
// HTTP status or an in-band status/infocode pair.
type StatusError struct {
	HTTPStatus int
	InfoCode   string
	Info       string
}

func (e *StatusError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("amap: http %d", e.HTTPStatus)
	}
	return fmt.Sprintf("amap: %s (infocode %s)", e.Info, e.InfoCode)
}

// Infocodes that indicate a configuration or request problem rather than load.
var permanentInfoCodes = map[string]bool{
	"10001": true, // INVALID_USER_KEY
	"10002": true, // SERVICE_NOT_AVAILABLE
	"10009": true, // USERKEY_PLAT_NOMATCH
	"20000": true, // INVALID_PARAMS
	"20001": true, // MISSING_REQUIRED_PARAMS
	"20003": true, // UNKNOWN_ERROR
}

// AMapClient implements Gateway against the AMap web service API.
type AMapClient struct {
	http    *http.Client
	key     string
	baseURL string
}

func NewAMapClient(key, baseURL string, timeout time.Duration) *AMapClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultAMapBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AMapClient{
		http:    &http.Client{Timeout: timeout},
		key:     strings.TrimSpace(key),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (c *AMapClient) Name() string { return "amap" }

type envelope struct {
	Status   FlexString `json:"status"`
	Info     FlexString `json:"info"`
	InfoCode FlexString `json:"infocode"`
}

func (e envelope) err() error {
	if e.Status.String() == "1" {
		return nil
	}
	se := &StatusError{InfoCode: e.InfoCode.String(), Info: e.Info.String()}
	if permanentInfoCodes[se.InfoCode] {
		return Permanent(se)
	}
	return se
}

func (c *AMapClient) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.key == "" {
		return Permanent(fmt.Errorf("amap: api key is not configured"))
	}
	params.Set("key", c.key)
	params.Set("output", "JSON")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return Permanent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		se := &StatusError{HTTPStatus: resp.StatusCode}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Permanent(se)
		}
		return se
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("amap: decode %s: %w", path, err)
	}
	if err := env.err(); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("amap: decode %s: %w", path, err)
	}
	return nil
}

func (c *AMapClient) searchText(ctx context.Context, q PlaceQuery, types string) ([]RawPlace, error) {
	limit := q.Limit
	if limit <= 0 || limit > 25 {
		limit = 20
	}
	params := url.Values{}
	params.Set("keywords", q.Keywords)
	params.Set("city", q.City)
	params.Set("citylimit", strconv.FormatBool(q.CityLimit))
	params.Set("offset", strconv.Itoa(limit))
	params.Set("page", "1")
	params.Set("extensions", "base")
	if types != "" {
		params.Set("types", types)
	}
	var resp struct {
		Pois []RawPlace `json:"pois"`
	}
	if err := c.get(ctx, "/v3/place/text", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Pois) > limit {
		resp.Pois = resp.Pois[:limit]
	}
	return resp.Pois, nil
}

func (c *AMapClient) SearchPOI(ctx context.Context, q PlaceQuery) ([]RawPlace, error) {
	return c.searchText(ctx, q, "")
}

func (c *AMapClient) SearchLodging(ctx context.Context, q PlaceQuery) ([]RawPlace, error) {
	return c.searchText(ctx, q, lodgingTypes)
}

// Forecast resolves the city to an adcode, then fetches the multi-day forecast.
func (c *AMapClient) Forecast(ctx context.Context, city string) ([]RawCast, error) {
	adcode, err := c.adcode(ctx, city)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("city", adcode)
	params.Set("extensions", "all")
	var resp struct {
		Forecasts []struct {
			City  FlexString `json:"city"`
			Casts []RawCast  `json:"casts"`
		} `json:"forecasts"`
	}
	if err := c.get(ctx, "/v3/weather/weatherInfo", params, &resp); err != nil {
		return nil, err
	}
	var out []RawCast
	for _, f := range resp.Forecasts {
		out = append(out, f.Casts...)
	}
	return out, nil
}

func (c *AMapClient) adcode(ctx context.Context, city string) (string, error) {
	city = strings.TrimSpace(city)
	if isAdcode(city) {
		return city, nil
	}
	params := url.Values{}
	params.Set("address", city)
	var resp struct {
		Geocodes []struct {
			Adcode FlexString `json:"adcode"`
		} `json:"geocodes"`
	}
	if err := c.get(ctx, "/v3/geocode/geo", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Geocodes) == 0 || resp.Geocodes[0].Adcode.String() == "" {
		return "", Permanent(fmt.Errorf("amap: no adcode for city %q", city))
	}
	return resp.Geocodes[0].Adcode.String(), nil
}

func isAdcode(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
