package registry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/facecheck/internal/adapters/repository"
	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/internal/domain/registry"
	"github.com/okian/facecheck/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeSampler returns no face for the first misses calls, then a face.
type fakeSampler struct {
	misses int32
	calls  atomic.Int32
	desc   model.Descriptor
	err    error
}

func (f *fakeSampler) Sample(_ context.Context) (*model.Detection, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if n <= f.misses {
		return nil, nil
	}
	return &model.Detection{Descriptor: f.desc, Score: 0.9}, nil
}

type neverSampler struct{}

func (neverSampler) Sample(_ context.Context) (*model.Detection, error) { return nil, nil }

func newRegistry(store registry.Store) *registry.Registry {
	return registry.New(store,
		registry.WithCaptureWindow(200*time.Millisecond),
		registry.WithPollInterval(5*time.Millisecond),
	)
}

func TestRegistry_Register(t *testing.T) {
	Convey("Given an empty registry", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		reg := newRegistry(store)

		Convey("When registering with a face visible after a few frames", func() {
			var desc model.Descriptor
			desc[1] = 0.5
			sampler := &fakeSampler{misses: 3, desc: desc}
			id, err := reg.Register(ctx, registry.Registration{DisplayName: " Ada ", ExternalID: "A-1", Organization: "Acme"}, sampler)

			Convey("Then the identity is stored and visible in the next snapshot", func() {
				So(err, ShouldBeNil)
				So(id.ID, ShouldNotBeEmpty)
				So(id.DisplayName, ShouldEqual, "Ada")
				So(id.Descriptor, ShouldResemble, desc)
				So(sampler.calls.Load(), ShouldEqual, 4)
				So(reg.Len(), ShouldEqual, 1)

				got, err := reg.Get(id.ID)
				So(err, ShouldBeNil)
				So(got.ExternalID, ShouldEqual, "A-1")

				persisted, _ := store.Identities(ctx)
				So(len(persisted), ShouldEqual, 1)
			})
		})

		Convey("When the external id is already registered", func() {
			_, err := reg.Register(ctx, registry.Registration{DisplayName: "Ada", ExternalID: "A-1"}, &fakeSampler{})
			So(err, ShouldBeNil)
			sampler := &fakeSampler{}
			_, err = reg.Register(ctx, registry.Registration{DisplayName: "Other", ExternalID: "A-1"}, sampler)

			Convey("Then it fails before capturing", func() {
				So(errors.Is(err, registry.ErrDuplicateID), ShouldBeTrue)
				So(sampler.calls.Load(), ShouldEqual, 0)
				So(reg.Len(), ShouldEqual, 1)
			})
		})

		Convey("When no face appears within the window", func() {
			start := time.Now()
			_, err := reg.Register(ctx, registry.Registration{DisplayName: "Ada", ExternalID: "A-1"}, neverSampler{})

			Convey("Then it fails with no face detected after the window", func() {
				So(errors.Is(err, registry.ErrNoFaceDetected), ShouldBeTrue)
				So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 200*time.Millisecond)
				So(reg.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the caller gives up during the capture window", func() {
			callerCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			start := time.Now()
			_, err := reg.Register(callerCtx, registry.Registration{DisplayName: "Ada", ExternalID: "A-1"}, neverSampler{})

			Convey("Then the caller's context error is returned without waiting for the window", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(errors.Is(err, registry.ErrNoFaceDetected), ShouldBeFalse)
				So(time.Since(start), ShouldBeLessThan, 200*time.Millisecond)
				So(reg.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the sampler keeps failing", func() {
			_, err := reg.Register(ctx, registry.Registration{DisplayName: "Ada", ExternalID: "A-1"}, &fakeSampler{err: errors.New("camera busy")})

			Convey("Then it is reported as no face", func() {
				So(errors.Is(err, registry.ErrNoFaceDetected), ShouldBeTrue)
			})
		})

		Convey("When required fields are blank", func() {
			sampler := &fakeSampler{}
			_, err := reg.Register(ctx, registry.Registration{DisplayName: "  ", ExternalID: "A-1"}, sampler)

			Convey("Then it is rejected without capturing", func() {
				So(errors.Is(err, registry.ErrInvalidRegistration), ShouldBeTrue)
				So(sampler.calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When the email is malformed", func() {
			_, err := reg.Register(ctx, registry.Registration{DisplayName: "Ada", ExternalID: "A-1", Email: "not-an-email"}, &fakeSampler{})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, registry.ErrInvalidRegistration), ShouldBeTrue)
			})
		})
	})
}

func TestRegistry_Snapshot(t *testing.T) {
	Convey("Given a registry with one identity", t, func() {
		ctx := context.Background()
		reg := newRegistry(repository.NewMemoryStore())
		_, err := reg.Register(ctx, registry.Registration{DisplayName: "Ada", ExternalID: "A-1"}, &fakeSampler{})
		So(err, ShouldBeNil)

		Convey("When a reader holds a snapshot across a registration", func() {
			before := reg.Snapshot()
			_, err := reg.Register(ctx, registry.Registration{DisplayName: "Bob", ExternalID: "B-1"}, &fakeSampler{})
			So(err, ShouldBeNil)

			Convey("Then the held snapshot is unchanged and the next one sees both", func() {
				So(before.Len(), ShouldEqual, 1)
				So(reg.Snapshot().Len(), ShouldEqual, 2)
				So(reg.List()[0].ExternalID, ShouldEqual, "A-1")
				So(reg.List()[1].ExternalID, ShouldEqual, "B-1")
			})
		})

		Convey("When looking up an unknown id", func() {
			_, err := reg.Get("missing")

			Convey("Then it is not found", func() {
				So(errors.Is(err, registry.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestRegistry_Load(t *testing.T) {
	Convey("Given a store with persisted identities", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		So(store.SaveIdentity(ctx, &model.Identity{ID: "1", ExternalID: "A"}), ShouldBeNil)
		So(store.SaveIdentity(ctx, &model.Identity{ID: "2", ExternalID: "B"}), ShouldBeNil)

		Convey("When a new registry loads them", func() {
			reg := newRegistry(store)
			So(reg.Load(ctx), ShouldBeNil)

			Convey("Then they are available in order", func() {
				So(reg.Len(), ShouldEqual, 2)
				So(reg.List()[0].ID, ShouldEqual, "1")
			})
		})
	})
}
