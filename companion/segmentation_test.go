package companion

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func postForm(t *testing.T, url string, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	resp, err := http.Post(url, w.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSegmentation_SharesPortWithWebSocket(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	s, err := New("json", log)
	require.NoError(t, err)
	seg := NewSegmentation([]byte("DICM"), log)
	s.Mount(seg)
	ts := httptest.NewServer(s)
	defer ts.Close()

	fields := map[string]string{
		"server":    "http://pacs:8042",
		"suffix":    "dicom-web",
		"studyUID":  "1.2",
		"seriesUID": "1.2.3",
	}
	resp := postForm(t, ts.URL+PathProcessSeries, fields)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postForm(t, ts.URL+PathDownloadSegmentation, fields)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, []byte("DICM"), body)

	forms := seg.Forms()
	require.Len(t, forms, 2)
	assert.Equal(t, SeriesForm{
		Path:      PathProcessSeries,
		Server:    "http://pacs:8042",
		Suffix:    "dicom-web",
		StudyUID:  "1.2",
		SeriesUID: "1.2.3",
	}, forms[0])

	// The WebSocket still answers on the same port
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, s.WaitConnected(testContext(t)))
	assert.Equal(t, 1, s.Accepted())
}

func TestSegmentation_RejectsIncompleteForms(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	s, err := New("json", log)
	require.NoError(t, err)
	seg := NewSegmentation(nil, log)
	s.Mount(seg)
	ts := httptest.NewServer(s)
	defer ts.Close()

	resp := postForm(t, ts.URL+PathProcessSeries, map[string]string{"studyUID": "1.2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	get, err := http.Get(ts.URL + PathProcessSeries)
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)

	seg.SetProcessStatus(http.StatusInternalServerError)
	resp = postForm(t, ts.URL+PathProcessSeries, map[string]string{"studyUID": "1.2", "seriesUID": "1.2.3"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Len(t, seg.Forms(), 1)
}
