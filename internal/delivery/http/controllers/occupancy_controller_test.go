package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventbooking/internal/domain"
	"eventbooking/internal/notify"
)

type mockEventReader struct {
	occ *domain.Occupancy
	err error
}

func (m *mockEventReader) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	return nil, domain.ErrNotFound
}

func (m *mockEventReader) GetOccupancy(ctx context.Context, id string) (*domain.Occupancy, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.occ, nil
}

func TestOccupancyController_GetOccupancy_Success(t *testing.T) {
	events := &mockEventReader{occ: &domain.Occupancy{EventID: testEventID, BookedCount: 7, Capacity: 10}}
	ctrl := NewOccupancyController(testLogger(), events, notify.NewHub())

	req := httptest.NewRequest(http.MethodGet, "/events/"+testEventID+"/occupancy", nil)
	req.SetPathValue("eventID", testEventID)
	w := httptest.NewRecorder()

	ctrl.GetOccupancy(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"booked_count":7`) || !strings.Contains(body, `"capacity":10`) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestOccupancyController_GetOccupancy_NotFound(t *testing.T) {
	events := &mockEventReader{err: domain.ErrNotFound}
	ctrl := NewOccupancyController(testLogger(), events, notify.NewHub())

	req := httptest.NewRequest(http.MethodGet, "/events/"+testEventID+"/occupancy", nil)
	req.SetPathValue("eventID", testEventID)
	w := httptest.NewRecorder()

	ctrl.GetOccupancy(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestOccupancyController_GetOccupancy_InvalidID(t *testing.T) {
	ctrl := NewOccupancyController(testLogger(), &mockEventReader{}, notify.NewHub())

	req := httptest.NewRequest(http.MethodGet, "/events/not-a-uuid/occupancy", nil)
	req.SetPathValue("eventID", "not-a-uuid")
	w := httptest.NewRecorder()

	ctrl.GetOccupancy(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestOccupancyController_StreamOccupancy_BadRequests(t *testing.T) {
	ctrl := NewOccupancyController(testLogger(), &mockEventReader{}, notify.NewHub())

	tooMany := make([]string, maxStreamTopics+1)
	for i := range tooMany {
		tooMany[i] = testEventID[:len(testEventID)-2] + twoHex(i)
	}

	tests := []struct {
		name   string
		target string
	}{
		{"missing events parameter", "/occupancy/stream"},
		{"malformed event ID", "/occupancy/stream?events=not-a-uuid"},
		{"too many topics", "/occupancy/stream?events=" + strings.Join(tooMany, ",")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			w := httptest.NewRecorder()

			ctrl.StreamOccupancy(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

// twoHex renders i as two hex digits so each generated event ID stays a
// valid, distinct UUID.
func twoHex(i int) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[(i>>4)&0xf], digits[i&0xf]})
}

func TestOccupancyController_StreamOccupancy_DeliversUpdates(t *testing.T) {
	hub := notify.NewHub()
	defer hub.Close()
	ctrl := NewOccupancyController(testLogger(), &mockEventReader{}, hub)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/occupancy/stream?events="+testEventID, nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		ctrl.StreamOccupancy(w, req)
		close(done)
	}()

	// Give the handler time to register and join before publishing.
	time.Sleep(100 * time.Millisecond)
	hub.Publish(testEventID, domain.Occupancy{EventID: testEventID, BookedCount: 3, Capacity: 10})
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not exit on context cancel")
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: occupancy") {
		t.Fatalf("expected an occupancy event, got: %s", body)
	}
	if !strings.Contains(body, `"booked_count":3`) {
		t.Fatalf("expected the published counts, got: %s", body)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
}
