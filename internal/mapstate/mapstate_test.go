package mapstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yu-fu/smokesearch/internal/models"
)

// mockAreas records the store calls made by the machine.
type mockAreas struct {
	mock.Mock
}

func (m *mockAreas) Add(ctx context.Context, in models.NewArea) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockAreas) List(ctx context.Context) []models.SmokingArea {
	args := m.Called(ctx)
	areas, _ := args.Get(0).([]models.SmokingArea)
	return areas
}

// assertUntouched checks that no store call was issued.
func (m *mockAreas) assertUntouched(t *testing.T) {
	t.Helper()
	m.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	m.AssertNotCalled(t, "List", mock.Anything)
}

var shibuya = models.Coordinates{Latitude: 35.6595, Longitude: 139.7004}

func located(c models.Coordinates) Locator {
	return LocatorFunc(func(context.Context) (models.Coordinates, error) { return c, nil })
}

func TestToggleOnOffLeavesStoreUntouched(t *testing.T) {
	areas := new(mockAreas)
	m := New(Initial(), areas, located(shibuya))

	m.Toggle(context.Background())
	assert.Equal(t, Placing, m.Mode)
	m.Pan(models.Coordinates{Latitude: 35.66, Longitude: 139.70}, 18)
	m.Toggle(context.Background())

	assert.Equal(t, Viewing, m.Mode)
	assert.Nil(t, m.Pin)
	areas.assertUntouched(t)
}

func TestCancelLeavesStoreUntouched(t *testing.T) {
	areas := new(mockAreas)
	m := New(Initial(), areas, nil)

	m.Toggle(context.Background())
	require.NoError(t, m.Confirm())
	m.SetMemo("屋外")
	m.Cancel()

	assert.Equal(t, Viewing, m.Mode)
	assert.Empty(t, m.Memo)
	assert.Nil(t, m.Pin)
	areas.assertUntouched(t)
}

func TestGeolocationFallback(t *testing.T) {
	failing := LocatorFunc(func(context.Context) (models.Coordinates, error) {
		return models.Coordinates{}, errors.New("permission denied")
	})
	for name, loc := range map[string]Locator{"error": failing, "none": nil, "signal": SignalLocator{}} {
		t.Run(name, func(t *testing.T) {
			m := New(Initial(), new(mockAreas), loc)
			m.Init(context.Background())
			assert.Equal(t, DefaultCenter, m.Viewport.Center)
			assert.Nil(t, m.UserLocation)
			assert.False(t, m.Signals().Located)

			m.Toggle(context.Background())
			assert.Equal(t, Placing, m.Mode)
			assert.Equal(t, DefaultCenter, m.Candidate())
			assert.Nil(t, m.UserLocation)
		})
	}
}

func TestGeolocationFailureKeepsEstablishedViewport(t *testing.T) {
	m := New(Initial(), new(mockAreas), nil)
	m.Pan(shibuya, 16)
	m.Toggle(context.Background())
	assert.Equal(t, shibuya, m.Viewport.Center)
	assert.Equal(t, 16, m.Viewport.Zoom)
}

func TestGeolocationTimeout(t *testing.T) {
	blocking := LocatorFunc(func(ctx context.Context) (models.Coordinates, error) {
		<-ctx.Done()
		return models.Coordinates{}, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := New(Initial(), new(mockAreas), blocking)
	m.Toggle(ctx)
	assert.Equal(t, DefaultCenter, m.Viewport.Center)
	assert.Nil(t, m.UserLocation)
}

func TestPlaceAndSubmit(t *testing.T) {
	ctx := context.Background()
	areas := new(mockAreas)
	m := New(Initial(), areas, located(shibuya))

	m.Toggle(ctx)
	require.NotNil(t, m.UserLocation)
	assert.Equal(t, shibuya, m.Viewport.Center)

	// the pin follows the center while placing
	target := models.Coordinates{Latitude: 35.661, Longitude: 139.701}
	m.Pan(target, 18)
	require.NoError(t, m.Confirm())
	assert.Equal(t, Confirming, m.Mode)
	assert.Equal(t, target, *m.Pin)

	// panning while the dialog is open does not move the pin
	m.Pan(shibuya, 18)
	m.SetMemo(" 屋外、灰皿あり ")

	stored := []models.SmokingArea{{ID: "id-1", Latitude: target.Latitude, Longitude: target.Longitude, Memo: "屋外、灰皿あり", CreatedByID: "uid-1"}}
	areas.On("Add", mock.Anything, mock.MatchedBy(func(in models.NewArea) bool {
		return in.Coordinates == target && in.Memo == "屋外、灰皿あり" && in.CreatedByID == "uid-1"
	})).Return("id-1", nil).Once()
	areas.On("List", mock.Anything).Return(stored).Once()

	list, err := m.Submit(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, stored, list)
	assert.Equal(t, Viewing, m.Mode)
	assert.Nil(t, m.Pin)
	areas.AssertExpectations(t)
}

func TestSubmitRequiresLogin(t *testing.T) {
	areas := new(mockAreas)
	m := New(Initial(), areas, nil)
	m.Toggle(context.Background())
	require.NoError(t, m.Confirm())

	_, err := m.Submit(context.Background(), "")
	assert.ErrorIs(t, err, ErrLoginRequired)
	areas.assertUntouched(t)
}

func TestSubmitStoreFailure(t *testing.T) {
	areas := new(mockAreas)
	areas.On("Add", mock.Anything, mock.Anything).Return("", errors.New("unavailable"))
	m := New(Initial(), areas, nil)
	m.Toggle(context.Background())
	require.NoError(t, m.Confirm())

	list, err := m.Submit(context.Background(), "uid-1")
	assert.Error(t, err)
	assert.Nil(t, list)
	assert.Equal(t, Viewing, m.Mode)
	assert.Equal(t, "error.area_add_failed", m.Error)
	areas.AssertNotCalled(t, "List", mock.Anything)
}

func TestInvalidTransitions(t *testing.T) {
	m := New(Initial(), new(mockAreas), nil)
	assert.ErrorIs(t, m.Confirm(), ErrInvalidTransition)
	_, err := m.Submit(context.Background(), "uid-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	m.SetMemo("ignored")
	assert.Empty(t, m.Memo)
}

func TestMemoTooltipThreshold(t *testing.T) {
	m := New(Initial(), new(mockAreas), nil)
	assert.True(t, m.ShowMemoTooltips())
	m.Pan(models.Coordinates{}, 16)
	assert.False(t, m.ShowMemoTooltips())
	m.Pan(models.Coordinates{}, 17)
	assert.True(t, m.ShowMemoTooltips())
	m.Pan(models.Coordinates{}, 40)
	assert.Equal(t, MaxZoom, m.Viewport.Zoom)
}

func TestSignalsRoundTrip(t *testing.T) {
	m := New(Initial(), new(mockAreas), located(shibuya))
	m.Toggle(context.Background())
	m.Pan(models.Coordinates{Latitude: 35.7, Longitude: 139.8}, 15)
	require.NoError(t, m.Confirm())
	m.SetMemo("memo")

	sig := m.Signals()
	assert.Equal(t, Confirming, sig.Mode)
	assert.True(t, sig.Located)
	assert.True(t, sig.HasPin)
	assert.False(t, sig.ShowMemos)

	assert.Equal(t, m.State, FromSignals(sig))
}

func TestFromSignalsRepairs(t *testing.T) {
	s := FromSignals(Signals{Mode: "bogus"})
	assert.Equal(t, Initial(), s)

	s = FromSignals(Signals{Mode: Confirming, Memo: "x", Zoom: 12, ViewportSet: true, Lat: 1, Lng: 2})
	assert.Equal(t, Viewing, s.Mode)
	assert.Empty(t, s.Memo)
	assert.Equal(t, 12, s.Viewport.Zoom)
	assert.Equal(t, models.Coordinates{Latitude: 1, Longitude: 2}, s.Viewport.Center)
}

func TestSignalLocator(t *testing.T) {
	ctx := context.Background()
	_, err := SignalLocator{}.Locate(ctx)
	assert.ErrorIs(t, err, ErrLocationUnavailable)

	_, err = SignalLocator{Geo: GeoSignal{Error: "timeout"}}.Locate(ctx)
	assert.EqualError(t, err, "timeout")

	c, err := SignalLocator{Geo: GeoSignal{OK: true, Lat: 1, Lng: 2}}.Locate(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Coordinates{Latitude: 1, Longitude: 2}, c)
}
