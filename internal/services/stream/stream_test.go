package stream

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStream_KeepsLatestCopy(t *testing.T) {
	s := New()
	assert.Nil(t, s.Latest())

	buf := []byte("frame-1")
	s.UpdateJPEG(buf)
	buf[0] = 'X'
	s.UpdateJPEG([]byte("frame-2"))

	assert.Equal(t, []byte("frame-2"), s.Latest())
	assert.Equal(t, uint64(2), s.Frames())
}

func TestSnapshotHandler(t *testing.T) {
	s := New()
	h := s.SnapshotHandler()

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.UpdateJPEG([]byte("jpeg"))
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/snapshot.jpg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg", rec.Body.String())
}
