package trip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteRequestValidate(t *testing.T) {
	req := RouteRequest{Origin: " 天安门 ", Destination: "颐和园", Mode: " Walking "}.Normalize()
	require.NoError(t, req.Validate())
	assert.Equal(t, "天安门", req.Origin)
	assert.Equal(t, "walking", req.Mode)

	var verr *ValidationError
	require.ErrorAs(t, RouteRequest{Origin: "天安门", Destination: " "}.Validate(), &verr)
	assert.Equal(t, "destination", verr.Field)
	assert.Equal(t, "is required", verr.Reason)
}

func TestRouteSummarize(t *testing.T) {
	r := Route{
		DistanceMeters:  12345,
		DurationSeconds: 1000,
		Steps: []RouteStep{
			{Instruction: "向北步行100米"},
			{},
			{Instruction: "右转进入长安街"},
		},
	}.Summarize()
	assert.Equal(t, 12.35, r.DistanceKm)
	assert.Equal(t, 16.7, r.DurationMinutes)
	assert.Equal(t, "向北步行100米；右转进入长安街", r.Description)

	empty := Route{}.Summarize()
	assert.NotNil(t, empty.Steps)
	assert.Zero(t, empty.DistanceKm)
}
