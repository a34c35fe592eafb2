package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/facecheck/internal/adapters/repository"
	"github.com/okian/facecheck/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type storeFactory func() repository.Store

func factories(t *testing.T) map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func() repository.Store {
			return repository.NewMemoryStore(repository.WithLocation(time.UTC))
		},
		"sqlite": func() repository.Store {
			s, err := repository.NewSQLiteStore(context.Background(), ":memory:", repository.WithLocation(time.UTC))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}
}

func record(id, identityID string, ts time.Time, st model.SessionType) model.AttendanceRecord {
	return model.AttendanceRecord{
		ID:           id,
		IdentityID:   identityID,
		IdentityName: "name-" + identityID,
		Timestamp:    ts,
		Confidence:   0.8,
		SessionType:  st,
	}
}

func TestStore_Attendance(t *testing.T) {
	for name, newStore := range factories(t) {
		Convey("Given an empty "+name+" store", t, func() {
			ctx := context.Background()
			s := newStore()
			defer s.Close()
			day := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

			Convey("When records are appended across two days", func() {
				So(s.Append(ctx, record("r1", "alice", day, model.SessionCheckIn)), ShouldBeNil)
				So(s.Append(ctx, record("r2", "bob", day.Add(time.Minute), model.SessionCheckIn)), ShouldBeNil)
				So(s.Append(ctx, record("r3", "carol", day.Add(24*time.Hour), model.SessionCheckIn)), ShouldBeNil)
				So(s.Append(ctx, record("r4", "dave", day.Add(2*time.Minute), model.SessionCheckIn)), ShouldBeNil)

				Convey("Then a day query returns that day's records in insertion order", func() {
					recs, err := s.RecordsForDay(ctx, day)
					So(err, ShouldBeNil)
					So(len(recs), ShouldEqual, 3)
					So(recs[0].ID, ShouldEqual, "r1")
					So(recs[1].ID, ShouldEqual, "r2")
					So(recs[2].ID, ShouldEqual, "r4")
					So(recs[0].IdentityName, ShouldEqual, "name-alice")
					So(recs[0].SessionType, ShouldEqual, model.SessionCheckIn)
					So(recs[0].Timestamp.Equal(day), ShouldBeTrue)
				})

				Convey("Then the count covers all days", func() {
					n, err := s.Count(ctx)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 4)
				})
			})

			Convey("When an identity checks in twice on the same day", func() {
				So(s.Append(ctx, record("r1", "alice", day, model.SessionCheckIn)), ShouldBeNil)
				err := s.Append(ctx, record("r2", "alice", day.Add(3*time.Hour), model.SessionCheckIn))

				Convey("Then the second is rejected", func() {
					So(errors.Is(err, repository.ErrAlreadyCheckedIn), ShouldBeTrue)
					recs, _ := s.RecordsForDay(ctx, day)
					So(len(recs), ShouldEqual, 1)
				})
			})

			Convey("When a record id is reused", func() {
				So(s.Append(ctx, record("r1", "alice", day, model.SessionCheckIn)), ShouldBeNil)
				sameDay := s.Append(ctx, record("r1", "bob", day.Add(time.Minute), model.SessionCheckIn))
				otherDay := s.Append(ctx, record("r1", "alice", day.Add(24*time.Hour), model.SessionCheckIn))

				Convey("Then it is rejected as a duplicate record, not a repeated check-in", func() {
					So(errors.Is(sameDay, repository.ErrDuplicateRecord), ShouldBeTrue)
					So(errors.Is(sameDay, repository.ErrAlreadyCheckedIn), ShouldBeFalse)
					So(errors.Is(otherDay, repository.ErrDuplicateRecord), ShouldBeTrue)
					n, _ := s.Count(ctx)
					So(n, ShouldEqual, 1)
				})

				Convey("Then the rejected identity can still check in under a fresh id", func() {
					So(s.Append(ctx, record("r2", "bob", day.Add(time.Minute), model.SessionCheckIn)), ShouldBeNil)
				})
			})

			Convey("When an identity records other session types on the same day", func() {
				So(s.Append(ctx, record("r1", "alice", day, model.SessionCheckIn)), ShouldBeNil)
				So(s.Append(ctx, record("r2", "alice", day.Add(time.Hour), model.SessionBreak)), ShouldBeNil)
				So(s.Append(ctx, record("r3", "alice", day.Add(2*time.Hour), model.SessionBreak)), ShouldBeNil)

				Convey("Then they are all kept", func() {
					recs, _ := s.RecordsForDay(ctx, day)
					So(len(recs), ShouldEqual, 3)
				})
			})

			Convey("When a day has no records", func() {
				recs, err := s.RecordsForDay(ctx, day.Add(-48*time.Hour))

				Convey("Then the result is empty", func() {
					So(err, ShouldBeNil)
					So(len(recs), ShouldEqual, 0)
				})
			})

			Convey("When many goroutines race the same check-in", func() {
				var wg sync.WaitGroup
				var mu sync.Mutex
				ok := 0
				for i := 0; i < 16; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						if s.Append(ctx, record(fmt.Sprintf("r%d", i), "alice", day, model.SessionCheckIn)) == nil {
							mu.Lock()
							ok++
							mu.Unlock()
						}
					}(i)
				}
				wg.Wait()

				Convey("Then exactly one wins", func() {
					So(ok, ShouldEqual, 1)
				})
			})
		})
	}
}

func TestStore_Identities(t *testing.T) {
	for name, newStore := range factories(t) {
		Convey("Given an empty "+name+" store", t, func() {
			ctx := context.Background()
			s := newStore()
			defer s.Close()

			alice := &model.Identity{
				ID:           "id-a",
				ExternalID:   "EXT-A",
				DisplayName:  "Alice",
				Organization: "Acme",
				RegisteredAt: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
			}
			alice.Descriptor[0] = 0.125
			alice.Descriptor[127] = -0.5
			bob := &model.Identity{ID: "id-b", ExternalID: "EXT-B", DisplayName: "Bob", RegisteredAt: alice.RegisteredAt}

			Convey("When identities are saved", func() {
				So(s.SaveIdentity(ctx, alice), ShouldBeNil)
				So(s.SaveIdentity(ctx, bob), ShouldBeNil)

				Convey("Then they load in registration order with descriptors intact", func() {
					ids, err := s.Identities(ctx)
					So(err, ShouldBeNil)
					So(len(ids), ShouldEqual, 2)
					So(ids[0].ID, ShouldEqual, "id-a")
					So(ids[1].ID, ShouldEqual, "id-b")
					So(ids[0].Descriptor, ShouldResemble, alice.Descriptor)
					So(ids[0].Organization, ShouldEqual, "Acme")
					So(ids[0].RegisteredAt.Equal(alice.RegisteredAt), ShouldBeTrue)
				})

				Convey("Then a second identity with the same external id is rejected", func() {
					dup := &model.Identity{ID: "id-c", ExternalID: "EXT-A", DisplayName: "Copy", RegisteredAt: alice.RegisteredAt}
					err := s.SaveIdentity(ctx, dup)
					So(errors.Is(err, repository.ErrDuplicateIdentity), ShouldBeTrue)
				})
			})
		})
	}
}
