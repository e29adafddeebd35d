package segmentation

import (
	"context"
	"fmt"

	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/plugin"
	"github.com/teranos/lookbridge/protocol"
)

// Optional command arguments overriding the series on display
const (
	ArgStudyUID  = "study_uid"
	ArgSeriesUID = "series_uid"
)

// Status is the result of the segmentationStatus command
type Status struct {
	Connected    bool   `json:"connected"`
	Endpoint     string `json:"endpoint"`
	HTTPURL      string `json:"http_url"`
	State        string `json:"state"`
	ConnectionID string `json:"connection_id,omitempty"`
	Phase        string `json:"phase"`
	Failures     int    `json:"failures"`
	Inflight     int    `json:"inflight"`
}

// Commands implements plugin.Extension. The functions run on the host's loop.
//
// sendToProcess and downloadResult return as soon as the request is under
// way: true when it started, false when there is no series to send. The
// outcome arrives as a notification and, on success, in the segmentation sink.
func (e *Extension) Commands() map[string]plugin.CommandFunc {
	return map[string]plugin.CommandFunc{
		CommandIsConnected: e.ready(func(map[string]interface{}) (interface{}, error) {
			return e.client.IsConnected(), nil
		}),
		CommandSendToProcess: e.ready(func(args map[string]interface{}) (interface{}, error) {
			return e.startJob(args, true), nil
		}),
		CommandDownloadResult: e.ready(func(args map[string]interface{}) (interface{}, error) {
			return e.startJob(args, false), nil
		}),
		CommandRequestSeries: e.ready(func(args map[string]interface{}) (interface{}, error) {
			if !e.client.IsConnected() {
				return false, nil
			}
			req, ok := e.seriesRequest(args)
			if !ok {
				return false, nil
			}
			if err := e.client.SendJSON(req); err != nil {
				return false, err
			}
			return true, nil
		}),
		CommandStatus: e.ready(func(map[string]interface{}) (interface{}, error) {
			return e.status(), nil
		}),
	}
}

func (e *Extension) ready(fn func(args map[string]interface{}) (interface{}, error)) plugin.CommandFunc {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		if !e.initialized {
			return nil, errors.Newf("%s is not initialized", Name)
		}
		return fn(args)
	}
}

// seriesRequest describes the series on display, or the one named in args
func (e *Extension) seriesRequest(args map[string]interface{}) (protocol.SeriesRequest, bool) {
	studies := e.services.Studies()
	ref, err := studies.ActiveSeries()
	if study, ok := args[ArgStudyUID].(string); ok && study != "" {
		ref.StudyUID = study
	}
	if series, ok := args[ArgSeriesUID].(string); ok && series != "" {
		ref.SeriesUID = series
	}
	if ref.StudyUID == "" || ref.SeriesUID == "" {
		e.logger.Infow("No series to send to the AI Server", logger.FieldError, err)
		return protocol.SeriesRequest{}, false
	}

	serverURL, suffix := SplitWadoRoot(studies.WadoRoot())
	return protocol.SeriesRequest{
		URL:       serverURL,
		Suffix:    suffix,
		StudyUID:  ref.StudyUID,
		SeriesUID: ref.SeriesUID,
	}, true
}

// startJob runs the HTTP exchange off the loop. process selects the full
// processSeries+download path over a plain download.
func (e *Extension) startJob(args map[string]interface{}, process bool) bool {
	req, ok := e.seriesRequest(args)
	if !ok {
		return false
	}

	ctx := e.jobCtx
	e.inflight++
	e.jobs.Add(1)
	go func() {
		defer e.jobs.Done()
		var data []byte
		var err error
		if process {
			data, err = e.processor.Run(ctx, req)
		} else {
			data, err = e.processor.DownloadSegmentation(ctx, req)
		}
		e.loop.Post(func() { e.finishJob(ctx, req, data, err) })
	}()
	return true
}

// finishJob hands a result to the host. Runs on the loop.
func (e *Extension) finishJob(ctx context.Context, req protocol.SeriesRequest, data []byte, err error) {
	e.inflight--
	if ctx.Err() != nil {
		// Shut down while the request was running
		return
	}
	if err != nil {
		e.logger.Warnw("Segmentation request failed",
			"series", req.SeriesUID,
			logger.FieldError, err,
		)
		e.notify(false, fmt.Sprintf("Segmentation failed: %v", err))
		return
	}

	ref := plugin.SeriesRef{StudyUID: req.StudyUID, SeriesUID: req.SeriesUID}
	if err := e.services.Segmentations().LoadSegmentation(ctx, ref, data); err != nil {
		e.logger.Warnw("Host rejected segmentation",
			"series", req.SeriesUID,
			logger.FieldError, err,
		)
		e.notify(false, fmt.Sprintf("Segmentation could not be loaded: %v", err))
		return
	}
	e.notify(true, "Segmentation loaded")
}

func (e *Extension) status() Status {
	return Status{
		Connected:    e.client.IsConnected(),
		Endpoint:     e.client.URL(),
		HTTPURL:      e.cfg.BaseURL(),
		State:        e.client.State().String(),
		ConnectionID: e.client.ConnectionID(),
		Phase:        e.supervisor.Phase().String(),
		Failures:     e.supervisor.Failures(),
		Inflight:     e.inflight,
	}
}
