package jobs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(h *Handler) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rr
}

func TestJobsHealthReportsPending(t *testing.T) {
	rr := serveHealth(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1, Archived: 2}}, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"active":0,"scheduled":0,"retry":1,"archived":2,"paused":false}`, rr.Body.String())
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	rr := serveHealth(NewHandler(nil, nil))
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0,"paused":false}`, rr.Body.String())
}

func TestJobsHealthInspectorError(t *testing.T) {
	rr := serveHealth(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestNewRegisterSnapshotTask(t *testing.T) {
	task, err := NewRegisterSnapshotTask(RegisterSnapshotPayload{Company: "Acme", Date: "2024-01-15"})
	assert.NoError(t, err)
	assert.Equal(t, TaskRegisterSnapshot, task.Type())
	assert.JSONEq(t, `{"company":"Acme","date":"2024-01-15"}`, string(task.Payload()))
}
