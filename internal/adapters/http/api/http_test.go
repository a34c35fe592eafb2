package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/facecheck/internal/adapters/http/api"
	"github.com/okian/facecheck/internal/adapters/repository"
	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/internal/domain/registry"
	"github.com/okian/facecheck/internal/domain/report"
	"github.com/okian/facecheck/internal/recognition"
	"github.com/okian/facecheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// mockDependencies implements api.Dependencies with in-memory state.
type mockDependencies struct {
	mu sync.Mutex

	identities  []*model.Identity
	registerErr error
	gotPhoto    []byte

	state    recognition.State
	startErr error
	latest   *recognition.Event

	seen       map[string]bool
	records    []model.AttendanceRecord
	appendErr  error
	pending    []model.AttendanceRecord
	pendingCap int
	acked      []string

	broadcaster *recognition.Broadcaster
}

func newMockDependencies() *mockDependencies {
	return &mockDependencies{
		seen:        make(map[string]bool),
		pendingCap:  10,
		broadcaster: recognition.NewBroadcaster(4),
	}
}

func (m *mockDependencies) RegisterIdentity(_ context.Context, in registry.Registration, photo []byte) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotPhoto = photo
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	id := &model.Identity{ID: fmt.Sprintf("id-%d", len(m.identities)+1), ExternalID: in.ExternalID, DisplayName: in.DisplayName}
	m.identities = append(m.identities, id)
	return id, nil
}

func (m *mockDependencies) Identities() []*model.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Identity(nil), m.identities...)
}

func (m *mockDependencies) StartRecognition(_ context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.state = recognition.StateActive
	return nil
}

func (m *mockDependencies) StopRecognition() {
	m.state = recognition.StateIdle
	m.latest = nil
}

func (m *mockDependencies) LatestRecognition() (recognition.Event, bool) {
	if m.latest == nil {
		return recognition.Event{}, false
	}
	return *m.latest, true
}

func (m *mockDependencies) RecognitionState() recognition.State { return m.state }

func (m *mockDependencies) SeenAndRecord(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return true
	}
	m.seen[id] = true
	return false
}

func (m *mockDependencies) Unrecord(_ context.Context, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
}

func (m *mockDependencies) Size() int64 { return int64(len(m.seen)) }

func (m *mockDependencies) Location() *time.Location { return time.UTC }

func (m *mockDependencies) RecordsForDay(_ context.Context, day time.Time) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	for _, r := range m.records {
		if model.SameDay(r.Timestamp, day, time.UTC) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockDependencies) AppendRecord(_ context.Context, rec model.AttendanceRecord) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *mockDependencies) EnqueuePending(_ context.Context, rec model.AttendanceRecord) bool {
	if len(m.pending) >= m.pendingCap {
		return false
	}
	m.pending = append(m.pending, rec)
	return true
}

func (m *mockDependencies) NextPending(_ context.Context) (model.AttendanceRecord, bool) {
	if len(m.pending) == 0 {
		return model.AttendanceRecord{}, false
	}
	rec := m.pending[0]
	m.pending = m.pending[1:]
	return rec, true
}

func (m *mockDependencies) AckPending(_ context.Context, id string) { m.acked = append(m.acked, id) }

func (m *mockDependencies) DailySummary(_ context.Context, day time.Time) (report.Summary, error) {
	recs, _ := m.RecordsForDay(context.Background(), day)
	return report.Summarize(day, recs, m.identities, time.UTC), nil
}

func (m *mockDependencies) Subscribe() (<-chan recognition.Event, func()) {
	return m.broadcaster.Subscribe()
}

func (m *mockDependencies) GetStats() map[string]interface{} {
	return map[string]interface{}{"identities": len(m.identities)}
}

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestServer_Routes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(newMockDependencies())

		Convey("Then health serves metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then health answers JSON when asked", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("Accept", "application/json")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(decode(w)["status"], ShouldEqual, "ok")
		})

		Convey("Then stats are served", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["identities"], ShouldEqual, float64(0))
		})

		Convey("Then wrong methods are rejected", func() {
			w := do(mux, http.MethodDelete, "/api/identities", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(decode(w)["code"], ShouldEqual, "method_not_allowed")
		})

		Convey("Then unknown paths are not found", func() {
			w := do(mux, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestIdentitiesHandler(t *testing.T) {
	Convey("Given the identities endpoint", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When registering an attendee", func() {
			w := do(mux, http.MethodPost, "/api/identities", `{"displayName":"Ada","externalId":"A-1","photo":"aGVsbG8="}`)

			Convey("Then it is created and listed without descriptors", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(decode(w)["externalId"], ShouldEqual, "A-1")
				So(string(deps.gotPhoto), ShouldEqual, "hello")

				list := do(mux, http.MethodGet, "/api/identities", "")
				So(list.Code, ShouldEqual, http.StatusOK)
				So(decode(list)["count"], ShouldEqual, float64(1))
				So(list.Body.String(), ShouldNotContainSubstring, "descriptor")
			})
		})

		Convey("When registration fails", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{fmt.Errorf("%w: name", registry.ErrInvalidRegistration), http.StatusBadRequest, "invalid_registration"},
				{fmt.Errorf("A-1: %w", registry.ErrDuplicateID), http.StatusConflict, "duplicate_id"},
				{registry.ErrNoFaceDetected, http.StatusUnprocessableEntity, "no_face_detected"},
				{errors.New("disk full"), http.StatusInternalServerError, "internal"},
			}

			Convey("Then each failure maps to its status", func() {
				for _, c := range cases {
					deps.registerErr = c.err
					w := do(mux, http.MethodPost, "/api/identities", `{"displayName":"Ada","externalId":"A-1"}`)
					So(w.Code, ShouldEqual, c.status)
					So(decode(w)["code"], ShouldEqual, c.code)
				}
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(mux, http.MethodPost, "/api/identities", `{`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestRecognitionHandler(t *testing.T) {
	Convey("Given the recognition endpoints", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)

		Convey("When starting without anyone registered", func() {
			deps.startErr = recognition.ErrNoRegistry
			w := do(mux, http.MethodPost, "/api/recognition/start", "")

			Convey("Then it conflicts with no_registry", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decode(w)["code"], ShouldEqual, "no_registry")
			})
		})

		Convey("When the camera is not ready", func() {
			deps.startErr = fmt.Errorf("%w: timeout", recognition.ErrSourceNotReady)
			w := do(mux, http.MethodPost, "/api/recognition/start", "")

			Convey("Then it is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When starting and reading the latest result", func() {
			w := do(mux, http.MethodPost, "/api/recognition/start", "")
			id := &model.Identity{ID: "id-1", DisplayName: "Ada"}
			deps.latest = &recognition.Event{Source: "door", Outcome: model.Match(id, 0.8)}
			latest := do(mux, http.MethodGet, "/api/recognition/latest", "")

			Convey("Then the loop is active and the match is reported", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["state"], ShouldEqual, "active")
				body := decode(latest)
				So(body["state"], ShouldEqual, "active")
				ev := body["event"].(map[string]any)
				So(ev["kind"], ShouldEqual, "match")
			})

			Convey("And stopping clears it", func() {
				stop := do(mux, http.MethodPost, "/api/recognition/stop", "")
				So(stop.Code, ShouldEqual, http.StatusOK)
				So(decode(stop)["state"], ShouldEqual, "idle")
				So(decode(do(mux, http.MethodGet, "/api/recognition/latest", ""))["event"], ShouldBeNil)
			})
		})
	})
}

func TestAttendanceHandler(t *testing.T) {
	Convey("Given the attendance endpoints", t, func() {
		deps := newMockDependencies()
		mux := newMux(deps)
		relay := `{"id":"rec-1","attendeeId":"id-1","attendeeName":"Ada","timestamp":"2026-09-14T09:30:00Z"}`

		Convey("When a record is relayed", func() {
			w := do(mux, http.MethodPost, "/api/attendance", relay)

			Convey("Then it is stored and queued", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(decode(w)["queued"], ShouldEqual, true)
				So(len(deps.records), ShouldEqual, 1)
				So(deps.records[0].SessionType, ShouldEqual, model.SessionCheckIn)
			})

			Convey("And relaying it again is a no-op", func() {
				again := do(mux, http.MethodPost, "/api/attendance", relay)
				So(again.Code, ShouldEqual, http.StatusOK)
				So(decode(again)["duplicate"], ShouldEqual, true)
				So(len(deps.records), ShouldEqual, 1)
			})

			Convey("And it is listed for its day in order", func() {
				do(mux, http.MethodPost, "/api/attendance", strings.Replace(relay, "rec-1", "rec-2", 1))
				list := do(mux, http.MethodGet, "/api/attendance?date=2026-09-14", "")
				So(list.Code, ShouldEqual, http.StatusOK)
				body := decode(list)
				So(body["count"], ShouldEqual, float64(2))
				recs := body["records"].([]any)
				So(recs[0].(map[string]any)["id"], ShouldEqual, "rec-1")
			})

			Convey("And a device can pop it once", func() {
				next := do(mux, http.MethodGet, "/api/attendance/next", "")
				So(next.Code, ShouldEqual, http.StatusOK)
				So(decode(next)["attendeeName"], ShouldEqual, "Ada")
				So(do(mux, http.MethodGet, "/api/attendance/next", "").Code, ShouldEqual, http.StatusNoContent)

				ack := do(mux, http.MethodPost, "/api/attendance/ack", `{"id":"rec-1"}`)
				So(ack.Code, ShouldEqual, http.StatusOK)
				So(deps.acked, ShouldResemble, []string{"rec-1"})
			})
		})

		Convey("When a field is missing", func() {
			w := do(mux, http.MethodPost, "/api/attendance", `{"id":"rec-1","attendeeId":"id-1","timestamp":"2026-09-14T09:30:00Z"}`)

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["message"], ShouldContainSubstring, "attendeeName")
			})
		})

		Convey("When the timestamp is not RFC3339", func() {
			w := do(mux, http.MethodPost, "/api/attendance", strings.Replace(relay, "2026-09-14T09:30:00Z", "yesterday", 1))

			Convey("Then it is rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the attendee already checked in that day", func() {
			deps.appendErr = fmt.Errorf("wrapped: %w", repository.ErrAlreadyCheckedIn)
			w := do(mux, http.MethodPost, "/api/attendance", relay)

			Convey("Then it is acknowledged as already recorded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "already_recorded")
			})
		})

		Convey("When the store already holds the record id", func() {
			deps.appendErr = fmt.Errorf("wrapped: %w", repository.ErrDuplicateRecord)
			w := do(mux, http.MethodPost, "/api/attendance", relay)

			Convey("Then it is acknowledged as a duplicate", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "duplicate")
				So(deps.pending, ShouldBeEmpty)
			})
		})

		Convey("When storing fails", func() {
			deps.appendErr = errors.New("disk full")
			w := do(mux, http.MethodPost, "/api/attendance", relay)

			Convey("Then the id is forgotten so the sender can retry", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(deps.seen["rec-1"], ShouldBeFalse)
			})
		})

		Convey("When the pending queue is full", func() {
			deps.pendingCap = 0
			w := do(mux, http.MethodPost, "/api/attendance", relay)

			Convey("Then the record is still stored", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(decode(w)["queued"], ShouldEqual, false)
				So(len(deps.records), ShouldEqual, 1)
			})
		})

		Convey("When the date is malformed", func() {
			w := do(mux, http.MethodGet, "/api/attendance?date=14-09-2026", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an ack has no id", func() {
			w := do(mux, http.MethodPost, "/api/attendance/ack", `{}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestReportsHandler(t *testing.T) {
	Convey("Given a day with one check-in", t, func() {
		deps := newMockDependencies()
		deps.identities = []*model.Identity{{ID: "id-1"}, {ID: "id-2"}}
		deps.records = []model.AttendanceRecord{{ID: "r", IdentityID: "id-1", Timestamp: time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC), SessionType: model.SessionCheckIn}}
		mux := newMux(deps)

		Convey("When the report for that day is requested", func() {
			w := do(mux, http.MethodGet, "/api/reports/today?date=2026-09-14", "")

			Convey("Then the summary is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["checkIns"], ShouldEqual, float64(1))
				So(body["attendanceRate"], ShouldEqual, float64(50))
			})
		})
	})
}

func TestFeedHandler(t *testing.T) {
	Convey("Given a websocket client on the feed", t, func() {
		deps := newMockDependencies()
		srv := httptest.NewServer(newMux(deps))
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/recognitions"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		deadline := time.Now().Add(time.Second)
		for deps.broadcaster.Subscribers() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		Convey("When an event is published", func() {
			deps.broadcaster.Publish(recognition.Event{Source: "door", Outcome: model.NoFace()})

			Convey("Then the client receives it as JSON", func() {
				_ = conn.SetReadDeadline(time.Now().Add(time.Second))
				var got map[string]any
				So(conn.ReadJSON(&got), ShouldBeNil)
				So(got["source"], ShouldEqual, "door")
				So(got["kind"], ShouldEqual, "no_face")
			})
		})

		Convey("When the client disconnects", func() {
			_ = conn.Close()

			Convey("Then the subscription is released", func() {
				deadline := time.Now().Add(time.Second)
				for deps.broadcaster.Subscribers() != 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(deps.broadcaster.Subscribers(), ShouldEqual, 0)
			})
		})
	})
}
