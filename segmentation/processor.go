package segmentation

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/internal/httpclient"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/protocol"
	"go.uber.org/zap"
)

// HTTP endpoints of the segmentation server
const (
	EndpointProcessSeries        = "processSeries"
	EndpointDownloadSegmentation = "downloadSegmentation"
)

// maxResultSize caps a downloaded segmentation object
const maxResultSize = 512 << 20

// HTTPRecorder receives request outcomes. metrics.Registry satisfies it.
type HTTPRecorder interface {
	HTTPRequestDone(extension, endpoint string, seconds float64, err error)
}

// SplitWadoRoot splits a DICOMweb root into the server URL and the last path
// segment, which the segmentation server expects separately:
//
//	http://pacs:8042/dicom-web -> http://pacs:8042, dicom-web
func SplitWadoRoot(root string) (serverURL, suffix string) {
	root = strings.TrimRight(root, "/")
	i := strings.LastIndex(root, "/")
	if i < 0 {
		return "", root
	}
	return root[:i], root[i+1:]
}

// Processor talks to the HTTP half of the segmentation server
type Processor struct {
	baseURL string
	client  *httpclient.LoopbackClient
	rec     HTTPRecorder
	logger  *zap.SugaredLogger
}

// NewProcessor creates a processor for baseURL, which must be on loopback
func NewProcessor(baseURL string, timeout time.Duration, rec HTTPRecorder, log *zap.SugaredLogger) (*Processor, error) {
	client := httpclient.New(timeout)
	if _, err := client.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	return &Processor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		rec:     rec,
		logger:  log,
	}, nil
}

// ProcessSeries asks the server to segment the series. Only 200 counts as accepted.
func (p *Processor) ProcessSeries(ctx context.Context, req protocol.SeriesRequest) error {
	resp, err := p.post(ctx, EndpointProcessSeries, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}

// DownloadSegmentation fetches the segmentation object produced for the series
func (p *Processor) DownloadSegmentation(ctx context.Context, req protocol.SeriesRequest) ([]byte, error) {
	resp, err := p.post(ctx, EndpointDownloadSegmentation, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read segmentation")
	}
	if len(data) > maxResultSize {
		return nil, errors.Newf("segmentation larger than %d bytes", maxResultSize)
	}
	if len(data) == 0 {
		return nil, errors.New("segmentation server returned an empty result")
	}
	return data, nil
}

// Run processes the series and downloads the result
func (p *Processor) Run(ctx context.Context, req protocol.SeriesRequest) ([]byte, error) {
	if err := p.ProcessSeries(ctx, req); err != nil {
		return nil, err
	}
	return p.DownloadSegmentation(ctx, req)
}

// post sends the series form and fails on anything but 200
func (p *Processor) post(ctx context.Context, endpoint string, req protocol.SeriesRequest) (resp *http.Response, err error) {
	start := time.Now()
	defer func() {
		if p.rec != nil {
			p.rec.HTTPRequestDone(Name, endpoint, time.Since(start).Seconds(), err)
		}
	}()

	body, contentType, err := seriesForm(req)
	if err != nil {
		return nil, err
	}
	url := p.baseURL + "/" + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s request", endpoint)
	}
	httpReq.Header.Set("Content-Type", contentType)

	p.logger.Debugw("Posting series",
		logger.FieldURL, url,
		"series", req.SeriesUID,
	)
	resp, err = p.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "%s failed", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Newf("%s answered %s", endpoint, resp.Status)
	}
	return resp, nil
}

// seriesForm encodes the request as the multipart form both endpoints expect
func seriesForm(req protocol.SeriesRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ name, value string }{
		{"server", req.URL},
		{"suffix", req.Suffix},
		{"studyUID", req.StudyUID},
		{"seriesUID", req.SeriesUID},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", errors.Wrapf(err, "failed to encode field %s", f.name)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "failed to close form")
	}
	return &buf, w.FormDataContentType(), nil
}
