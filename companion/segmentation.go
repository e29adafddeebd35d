package companion

import (
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Paths served by the segmentation server next to its WebSocket
const (
	PathProcessSeries        = "/processSeries"
	PathDownloadSegmentation = "/downloadSegmentation"
)

// maxFormMemory bounds the multipart form kept in memory per request
const maxFormMemory = 1 << 20

// SeriesForm is one multipart request received on a segmentation endpoint
type SeriesForm struct {
	Path      string
	Server    string
	Suffix    string
	StudyUID  string
	SeriesUID string
}

// Segmentation fakes the HTTP half of the segmentation server: processSeries
// answers with a configurable status and downloadSegmentation returns a
// fixed result.
type Segmentation struct {
	logger *zap.SugaredLogger

	mu            sync.Mutex
	result        []byte
	processStatus int
	forms         []SeriesForm
}

// NewSegmentation creates endpoints that hand out result
func NewSegmentation(result []byte, log *zap.SugaredLogger) *Segmentation {
	return &Segmentation{
		logger:        log,
		result:        result,
		processStatus: http.StatusOK,
	}
}

// SetProcessStatus changes the status processSeries answers with
func (g *Segmentation) SetProcessStatus(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processStatus = code
}

// Forms returns every well-formed request received so far
func (g *Segmentation) Forms() []SeriesForm {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SeriesForm(nil), g.forms...)
}

// Mount serves g's endpoints from s. Upgrade requests still reach the
// WebSocket handler.
func (s *Server) Mount(g *Segmentation) {
	mux := http.NewServeMux()
	mux.HandleFunc(PathProcessSeries, g.processSeries)
	mux.HandleFunc(PathDownloadSegmentation, g.downloadSegmentation)
	s.routes = mux
}

func (g *Segmentation) processSeries(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.record(w, r); !ok {
		return
	}
	g.mu.Lock()
	code := g.processStatus
	g.mu.Unlock()
	w.WriteHeader(code)
}

func (g *Segmentation) downloadSegmentation(w http.ResponseWriter, r *http.Request) {
	if _, ok := g.record(w, r); !ok {
		return
	}
	g.mu.Lock()
	result := g.result
	g.mu.Unlock()
	w.Header().Set("Content-Type", "application/dicom")
	w.WriteHeader(http.StatusOK)
	w.Write(result)
}

// record parses and stores the form, answering 4xx itself when it is unusable
func (g *Segmentation) record(w http.ResponseWriter, r *http.Request) (SeriesForm, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return SeriesForm{}, false
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		g.logger.Warnw("Rejecting segmentation request", "path", r.URL.Path, "error", err)
		http.Error(w, "expected multipart form", http.StatusBadRequest)
		return SeriesForm{}, false
	}

	form := SeriesForm{
		Path:      r.URL.Path,
		Server:    r.FormValue("server"),
		Suffix:    r.FormValue("suffix"),
		StudyUID:  r.FormValue("studyUID"),
		SeriesUID: r.FormValue("seriesUID"),
	}
	if form.StudyUID == "" || form.SeriesUID == "" {
		http.Error(w, "studyUID and seriesUID are required", http.StatusBadRequest)
		return form, false
	}

	g.mu.Lock()
	g.forms = append(g.forms, form)
	g.mu.Unlock()
	g.logger.Infow("Segmentation request", "path", form.Path, "series", form.SeriesUID)
	return form, true
}
