package fake

import (
	"context"
	"testing"

	"github.com/BearBump/TrackBatch/internal/integrations/ship24"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_Fetch_ParsesAsShip24(t *testing.T) {
	c := New()
	body, err := c.Fetch(context.Background(), "A1")
	require.NoError(t, err)

	info := ship24.Parse(body)
	require.NotNil(t, info)
	require.False(t, info.HasError)
	require.Equal(t, "A1", info.ID)
	require.NotEmpty(t, info.Events)
	require.NotEmpty(t, info.Timeline)
}

func TestFakeClient_Fetch_Deterministic(t *testing.T) {
	c := New()
	a, err := c.Fetch(context.Background(), "SAME")
	require.NoError(t, err)
	b, err := c.Fetch(context.Background(), "SAME")
	require.NoError(t, err)
	require.Equal(t, ship24.Parse(a).Status, ship24.Parse(b).Status)
}

func TestFakeClient_Fetch_Errors(t *testing.T) {
	c := New()
	_, err := c.Fetch(context.Background(), "invalid-1")
	var inv *ship24.InvalidTrackingNumberError
	require.ErrorAs(t, err, &inv)

	_, err = c.Fetch(context.Background(), "NODATA-2")
	require.ErrorIs(t, err, ship24.ErrNoTrackingData)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Fetch(ctx, "A1")
	var ne *ship24.NetworkError
	require.ErrorAs(t, err, &ne)
}
