package ui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drillx/internal/api"
)

type stubSource struct {
	health   *api.HealthResponse
	metrics  *api.MetricsResponse
	batch    *api.BatchResponse
	err      error
	batchErr error
	starts   []uint64
}

func (s *stubSource) GetHealth(context.Context) (*api.HealthResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.health, nil
}

func (s *stubSource) GetMetrics(context.Context) (*api.MetricsResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.metrics, nil
}

func (s *stubSource) BatchFrom(_ context.Context, _ []byte, start uint64, _ int32) (*api.BatchResponse, error) {
	s.starts = append(s.starts, start)
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	return s.batch, nil
}

func newStubSource() *stubSource {
	return &stubSource{
		health: &api.HealthResponse{Status: "healthy", Backend: "local", Uptime: "1m0s"},
		metrics: &api.MetricsResponse{
			SuccessfulBatches: 3,
			TotalLanes:        40,
			SolvedLanes:       10,
			AverageLatencyMs:  1.5,
		},
		batch: &api.BatchResponse{
			Digests:     []string{"00", "00", "00", "00"},
			SolvedLanes: 2,
			Backend:     "local",
			Best:        &api.BestResponse{Lane: 1, Nonce: 101, Difficulty: 7, Hash: "abcd"},
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, d Dashboard, msg tea.Msg) (Dashboard, tea.Cmd) {
	t.Helper()
	m, cmd := d.Update(msg)
	next, ok := m.(Dashboard)
	require.True(t, ok)
	return next, cmd
}

func TestDashboardStatus(t *testing.T) {
	src := newStubSource()
	d := NewDashboard(src, DashboardConfig{Challenge: []byte{1, 2}})

	d, cmd := update(t, d, d.fetchStatus()())
	assert.NotNil(t, cmd, "polling should be rescheduled")
	require.NotNil(t, d.Health)
	assert.Equal(t, "local", d.Health.Backend)
	assert.InDelta(t, 0.25, d.SolvedRatio(), 1e-9)

	view := d.View()
	assert.Contains(t, view, "drillx monitor")
	assert.Contains(t, view, "backend local")
	assert.Contains(t, view, "10 solved of 40")
}

func TestDashboardUnreachable(t *testing.T) {
	src := newStubSource()
	src.err = errors.New("connection refused")
	d := NewDashboard(src, DashboardConfig{})

	d, _ = update(t, d, d.fetchStatus()())
	require.Error(t, d.LastErr)
	assert.Contains(t, d.View(), "unreachable")
	events := len(d.Events)

	// Same error again is not logged twice
	d, _ = update(t, d, d.fetchStatus()())
	assert.Len(t, d.Events, events)

	src.err = nil
	d, _ = update(t, d, d.fetchStatus()())
	assert.NoError(t, d.LastErr)
	assert.Len(t, d.Events, events+1)
}

func TestDashboardBatch(t *testing.T) {
	src := newStubSource()
	d := NewDashboard(src, DashboardConfig{StartNonce: 100, BatchSize: 4})

	d, cmd := update(t, d, keyMsg("b"))
	require.NotNil(t, cmd)
	assert.True(t, d.Running)

	// A second press while running is ignored
	_, again := update(t, d, keyMsg("b"))
	assert.Nil(t, again)

	d, _ = update(t, d, cmd())
	assert.False(t, d.Running)
	assert.Equal(t, []uint64{100}, src.starts)
	assert.Equal(t, uint64(104), d.NextNonce)
	require.NotNil(t, d.Best)
	assert.Equal(t, uint64(101), d.Best.Nonce)

	// A worse batch does not replace the best lane
	src.batch = &api.BatchResponse{
		Digests: []string{"00", "00", "00", "00"},
		Best:    &api.BestResponse{Nonce: 105, Difficulty: 3},
	}
	d, cmd = update(t, d, keyMsg("b"))
	d, _ = update(t, d, cmd())
	assert.Equal(t, []uint64{100, 104}, src.starts)
	assert.Equal(t, uint64(101), d.Best.Nonce)
	assert.Equal(t, uint64(108), d.NextNonce)
}

func TestDashboardBatchFailure(t *testing.T) {
	src := newStubSource()
	src.batchErr = errors.New("server error (500): lane 3 faulted")
	d := NewDashboard(src, DashboardConfig{StartNonce: 7})

	d, cmd := update(t, d, keyMsg("b"))
	d, _ = update(t, d, cmd())

	assert.False(t, d.Running)
	assert.Equal(t, uint64(7), d.NextNonce, "failed batch must not advance the nonce")
	assert.Nil(t, d.Best)
	assert.Contains(t, d.Events[len(d.Events)-1], "lane 3 faulted")
}

func TestDashboardCopyBest(t *testing.T) {
	var copied []string
	d := NewDashboard(newStubSource(), DashboardConfig{})
	d.copyFn = func(s string) error {
		copied = append(copied, s)
		return nil
	}

	d, cmd := update(t, d, keyMsg("c"))
	assert.Nil(t, cmd)
	assert.Empty(t, copied)

	d.Best = &api.BestResponse{Nonce: 42, Hash: "ff00"}
	d, cmd = update(t, d, keyMsg("c"))
	require.NotNil(t, cmd)
	assert.Equal(t, []string{"42:ff00"}, copied)
	assert.True(t, d.ShowCopyNotice)
	assert.Contains(t, d.View(), "copied")

	d, _ = update(t, d, hideCopyNoticeMsg{})
	assert.False(t, d.ShowCopyNotice)
}

func TestDashboardQuitAndResize(t *testing.T) {
	d := NewDashboard(newStubSource(), DashboardConfig{})

	d, _ = update(t, d, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 120, d.Width)
	assert.Equal(t, 116, d.events.Width)
	assert.Equal(t, 22, d.events.Height)

	_, cmd := update(t, d, keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
