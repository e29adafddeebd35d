package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/eventloop"
	"github.com/teranos/lookbridge/plugin"
	"go.uber.org/zap/zaptest"
)

// inlinePoster runs posted callbacks immediately
type inlinePoster struct{}

func (inlinePoster) Post(fn func()) bool {
	fn()
	return true
}

type countingRecorder struct {
	shown, limited int
}

func (r *countingRecorder) NotificationShown(kind string, shown bool) {
	if shown {
		r.shown++
	} else {
		r.limited++
	}
}

func TestNotifier_RateLimitsPerTitle(t *testing.T) {
	rec := &countingRecorder{}
	n := NewNotifier(NotifyConfig{PerMinute: 1, Burst: 2, History: 10}, rec, zaptest.NewLogger(t).Sugar())

	var rendered []string
	n.OnShow = func(note plugin.Notification) { rendered = append(rendered, note.Message) }

	for i := 0; i < 5; i++ {
		n.Show(plugin.Notification{Title: "DeepLook integration", Message: "lost", Type: plugin.NotificationError})
	}
	n.Show(plugin.Notification{Title: "Segmentation", Message: "ready", Type: plugin.NotificationInfo})

	assert.Equal(t, 3, rec.shown)
	assert.Equal(t, 3, rec.limited)
	assert.Equal(t, []string{"lost", "lost", "ready"}, rendered)
	assert.Len(t, n.Recent(), 3)
}

func TestNotifier_UnlimitedAndHistoryBound(t *testing.T) {
	n := NewNotifier(NotifyConfig{History: 2}, nil, zaptest.NewLogger(t).Sugar())
	for _, msg := range []string{"a", "b", "c"} {
		n.Show(plugin.Notification{Title: "t", Message: msg, Type: plugin.NotificationWarning})
	}
	recent := n.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Message)
	assert.Equal(t, "c", recent[1].Message)
}

func TestViewports(t *testing.T) {
	vp := NewStaticViewport(ViewportConfig{Width: 100, Height: 50, MMPerPixel: 0.25, RowSpacing: 0.7, ColumnSpacing: 0.8})
	assert.Equal(t, [3]float64{2.5, 5, 0}, vp.CanvasToWorld(10, 20))
	assert.True(t, vp.Contains(99, 49))
	assert.False(t, vp.Contains(100, 10))
	assert.False(t, vp.Contains(-1, 10))
	row, col := vp.PixelSpacing()
	assert.Equal(t, 0.7, row)
	assert.Equal(t, 0.8, col)

	s := NewViewports(vp)
	got, err := s.ActiveViewport()
	require.NoError(t, err)
	assert.Same(t, vp, got)

	s.SetActive(nil)
	_, err = s.ActiveViewport()
	assert.True(t, errors.Is(err, errors.ErrNoActiveViewport))
}

func TestToolGroup_BindingMovesBetweenTools(t *testing.T) {
	g := NewToolGroup("default", "WindowLevel", "Pan", "Zoom")
	require.NoError(t, g.SetToolActive("WindowLevel", plugin.Binding{MouseButton: plugin.MouseButtonPrimary}))
	assert.Equal(t, "WindowLevel", g.ActivePrimaryTool())

	require.NoError(t, g.SetToolActive("Zoom", plugin.Binding{MouseButton: plugin.MouseButtonPrimary}))
	assert.Equal(t, "Zoom", g.ActivePrimaryTool())

	mode, buttons, ok := g.Mode("WindowLevel")
	require.True(t, ok)
	assert.Equal(t, ToolPassive, mode)
	assert.Empty(t, buttons)
}

func TestToolGroup_DisableAndRestore(t *testing.T) {
	g := NewToolGroup("default", "Pan")
	require.NoError(t, g.SetToolActive("Pan", plugin.Binding{MouseButton: plugin.MouseButtonPrimary}))

	require.NoError(t, g.SetToolDisabled("Pan"))
	assert.Empty(t, g.ActivePrimaryTool())
	mode, _, _ := g.Mode("Pan")
	assert.Equal(t, ToolDisabled, mode)

	// Without a binding the tool is active but bound to nothing
	require.NoError(t, g.SetToolActive("Pan"))
	mode, buttons, _ := g.Mode("Pan")
	assert.Equal(t, ToolActive, mode)
	assert.Empty(t, buttons)
	assert.Empty(t, g.ActivePrimaryTool())

	err := g.SetToolActive("Crosshairs")
	assert.True(t, errors.IsNotFoundError(err))
	assert.Equal(t, []string{"Pan"}, g.Tools())
}

func TestToolGroups(t *testing.T) {
	a := NewToolGroup("mpr")
	b := NewToolGroup("stack")
	s := NewToolGroups(a, b)

	active, err := s.ActiveToolGroup()
	require.NoError(t, err)
	assert.Equal(t, "mpr", active.ID())

	require.NoError(t, s.SetActive("stack"))
	active, _ = s.ActiveToolGroup()
	assert.Equal(t, "stack", active.ID())

	_, ok := s.ToolGroup("missing")
	assert.False(t, ok)
	assert.Error(t, s.SetActive("missing"))

	_, err = NewToolGroups().ActiveToolGroup()
	assert.True(t, errors.Is(err, errors.ErrNoActiveViewport))
}

func TestBus_SubscribePublishUnsubscribe(t *testing.T) {
	bus := NewBus(inlinePoster{})
	var got []interface{}
	unsubscribe := bus.Subscribe(plugin.TopicCameraModified, func(p interface{}) { got = append(got, p) })

	bus.Publish(plugin.TopicCameraModified, 1)
	bus.Publish("OTHER", 2)
	assert.Equal(t, []interface{}{1}, got)

	unsubscribe()
	unsubscribe()
	bus.Publish(plugin.TopicCameraModified, 3)
	assert.Equal(t, []interface{}{1}, got)
	assert.Zero(t, bus.Subscribers(plugin.TopicCameraModified))
}

func TestBus_HandlersRunOnLoop(t *testing.T) {
	loop := eventloop.New(zaptest.NewLogger(t).Sugar(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	bus := NewBus(loop)
	fired := make(chan struct{}, 1)
	bus.Subscribe(plugin.TopicCameraModified, func(interface{}) { fired <- struct{}{} })
	bus.Publish(plugin.TopicCameraModified, nil)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}

func TestStudies(t *testing.T) {
	s := NewStudies(StudyConfig{WadoRoot: "http://localhost/dicom-web", StudyUID: "1.2", SeriesUID: "1.2.3"})
	assert.Equal(t, "http://localhost/dicom-web", s.WadoRoot())
	ref, err := s.ActiveSeries()
	require.NoError(t, err)
	assert.Equal(t, plugin.SeriesRef{StudyUID: "1.2", SeriesUID: "1.2.3"}, ref)

	_, err = NewStudies(StudyConfig{}).ActiveSeries()
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSegmentationStore_WritesFile(t *testing.T) {
	dir := t.TempDir()
	store := NewSegmentationStore(dir, zaptest.NewLogger(t).Sugar())
	ref := plugin.SeriesRef{StudyUID: "1.2", SeriesUID: "1.2.3"}

	require.NoError(t, store.LoadSegmentation(context.Background(), ref, []byte("DICM")))

	data, err := os.ReadFile(filepath.Join(dir, "1.2_1.2.3.seg.dcm"))
	require.NoError(t, err)
	assert.Equal(t, []byte("DICM"), data)

	got, ok := store.Received(ref)
	require.True(t, ok)
	assert.Equal(t, []byte("DICM"), got)

	assert.Error(t, store.LoadSegmentation(context.Background(), ref, nil))
}

func TestHost_ServicesAndConfig(t *testing.T) {
	v := viper.New()
	v.Set("deeplook.port", 44458)
	v.Set("deeplook.supervisor.poll_interval", "3s")

	loop := eventloop.New(zaptest.NewLogger(t).Sugar(), 0)
	h, err := New(DefaultConfig(), v, loop, nil, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	cfg := h.Config("deeplook")
	assert.Equal(t, 44458, cfg.GetInt("port"))
	assert.Equal(t, 3*time.Second, cfg.GetDuration("supervisor.poll_interval"))
	assert.False(t, h.Config("segmentation").IsSet("port"))

	group, err := h.ToolGroups().ActiveToolGroup()
	require.NoError(t, err)
	assert.Equal(t, "WindowLevel", group.ActivePrimaryTool())

	_, err = h.Viewports().ActiveViewport()
	assert.NoError(t, err)
	assert.NotNil(t, h.Loop())
}

func TestHost_UnknownPrimaryTool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrimaryTool = "Crosshairs"
	_, err := New(cfg, nil, eventloop.New(zaptest.NewLogger(t).Sugar(), 0), nil, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}
