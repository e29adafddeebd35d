package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/plugin"
	"go.uber.org/zap"
)

// StudyConfig is the study the headless host pretends to display
type StudyConfig struct {
	WadoRoot  string
	StudyUID  string
	SeriesUID string
}

// Studies is a static plugin.StudyService
type Studies struct {
	cfg StudyConfig
}

// NewStudies creates the service from cfg
func NewStudies(cfg StudyConfig) *Studies {
	return &Studies{cfg: cfg}
}

func (s *Studies) WadoRoot() string { return s.cfg.WadoRoot }

// ActiveSeries implements plugin.StudyService
func (s *Studies) ActiveSeries() (plugin.SeriesRef, error) {
	if s.cfg.StudyUID == "" || s.cfg.SeriesUID == "" {
		return plugin.SeriesRef{}, errors.NewNotFoundError("no series on display")
	}
	return plugin.SeriesRef{StudyUID: s.cfg.StudyUID, SeriesUID: s.cfg.SeriesUID}, nil
}

// SegmentationStore keeps received segmentations and optionally writes them
// to OutputDir as <study>_<series>.seg.dcm.
type SegmentationStore struct {
	outputDir string
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	received map[plugin.SeriesRef][]byte
}

// NewSegmentationStore creates a store. An empty dir keeps results in memory only.
func NewSegmentationStore(dir string, log *zap.SugaredLogger) *SegmentationStore {
	return &SegmentationStore{
		outputDir: dir,
		logger:    log,
		received:  make(map[plugin.SeriesRef][]byte),
	}
}

// LoadSegmentation implements plugin.SegmentationSink
func (s *SegmentationStore) LoadSegmentation(ctx context.Context, ref plugin.SeriesRef, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.NewInvalidRequestError("empty segmentation for series %s", ref.SeriesUID)
	}

	s.mu.Lock()
	s.received[ref] = append([]byte(nil), data...)
	s.mu.Unlock()

	if s.outputDir == "" {
		s.logger.Infow("Segmentation received", "series", ref.SeriesUID, "size", len(data))
		return nil
	}

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", s.outputDir)
	}
	path := filepath.Join(s.outputDir, fileName(ref))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write segmentation to %s", path)
	}
	s.logger.Infow("Segmentation written", "series", ref.SeriesUID, "path", path, "size", len(data))
	return nil
}

// Received returns the last segmentation stored for ref
func (s *SegmentationStore) Received(ref plugin.SeriesRef) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.received[ref]
	return data, ok
}

func fileName(ref plugin.SeriesRef) string {
	clean := func(uid string) string {
		return strings.Map(func(r rune) rune {
			if r == '/' || r == '\\' || r == os.PathSeparator {
				return '_'
			}
			return r
		}, uid)
	}
	return fmt.Sprintf("%s_%s.seg.dcm", clean(ref.StudyUID), clean(ref.SeriesUID))
}
