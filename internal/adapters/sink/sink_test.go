package sink_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/facecheck/internal/adapters/sink"
	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestHTTPSink(t *testing.T) {
	convey.Convey("Given a backend accepting attendance", t, func() {
		_ = logger.Init()

		got := make(chan map[string]string, 1)
		var status atomic.Int32
		status.Store(http.StatusCreated)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			got <- body
			w.WriteHeader(int(status.Load()))
		}))
		defer srv.Close()

		s := sink.New(srv.URL, sink.WithTimeout(time.Second))
		rec := model.AttendanceRecord{
			ID:           "rec-1",
			IdentityID:   "id-1",
			IdentityName: "Ada Lovelace",
			Timestamp:    time.Date(2026, 9, 14, 9, 30, 0, 0, time.UTC),
			SessionType:  model.SessionCheckIn,
		}

		convey.Convey("When a record is sent", func() {
			err := s.Send(context.Background(), rec)

			convey.Convey("Then the backend receives the attendee payload", func() {
				convey.So(err, convey.ShouldBeNil)
				body := <-got
				convey.So(body["id"], convey.ShouldEqual, "rec-1")
				convey.So(body["attendeeId"], convey.ShouldEqual, "id-1")
				convey.So(body["attendeeName"], convey.ShouldEqual, "Ada Lovelace")
				convey.So(body["timestamp"], convey.ShouldEqual, "2026-09-14T09:30:00Z")
			})
		})

		convey.Convey("When the backend refuses", func() {
			status.Store(http.StatusBadGateway)
			err := s.Send(context.Background(), rec)

			convey.Convey("Then the failure is reported", func() {
				convey.So(errors.Is(err, sink.ErrRejected), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given an unreachable backend", t, func() {
		_ = logger.Init()
		s := sink.New("http://127.0.0.1:1", sink.WithTimeout(100*time.Millisecond))

		convey.Convey("Then Send fails without panicking", func() {
			convey.So(s.Send(context.Background(), model.AttendanceRecord{ID: "x"}), convey.ShouldNotBeNil)
		})
	})
}
