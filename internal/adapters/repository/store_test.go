package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func sequentialIDs() func() string {
	i := 0
	return func() string {
		i++
		return fmt.Sprintf("id-%d", i)
	}
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		s := NewMemoryStore[string]("test")

		Convey("When a value is stored", func() {
			id, err := s.Put(ctx, "kepler-10b")

			Convey("Then it should be retrievable by a uuid", func() {
				So(err, ShouldBeNil)
				_, perr := uuid.Parse(id)
				So(perr, ShouldBeNil)

				v, err := s.Get(ctx, id)
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "kepler-10b")
				So(s.Len(), ShouldEqual, 1)
			})
		})

		Convey("When an unknown id is requested", func() {
			_, err := s.Get(ctx, "missing")

			Convey("Then it should report not found", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, putErr := s.Put(cctx, "x")
			_, getErr := s.Get(cctx, "x")

			Convey("Then both operations should fail", func() {
				So(errors.Is(putErr, context.Canceled), ShouldBeTrue)
				So(errors.Is(getErr, context.Canceled), ShouldBeTrue)
				So(s.Len(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a store with capacity 2", t, func() {
		ctx := context.Background()
		s := NewMemoryStore[int]("bounded", WithCapacity(2), WithIDFunc(sequentialIDs()))

		Convey("When a third value is stored", func() {
			_, _ = s.Put(ctx, 1)
			_, _ = s.Put(ctx, 2)
			id3, _ := s.Put(ctx, 3)

			Convey("Then the oldest entry should be evicted", func() {
				So(s.Len(), ShouldEqual, 2)
				So(s.Capacity(), ShouldEqual, 2)
				_, err := s.Get(ctx, "id-1")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				v, err := s.Get(ctx, "id-2")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 2)
				v, err = s.Get(ctx, id3)
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 3)
			})
		})

		Convey("When the generator repeats an id", func() {
			s := NewMemoryStore[int]("repeat", WithIDFunc(func() string { return "same" }))
			_, _ = s.Put(ctx, 1)
			_, _ = s.Put(ctx, 2)

			Convey("Then the value should be replaced without growing", func() {
				v, err := s.Get(ctx, "same")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 2)
				So(s.Len(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given options with invalid values", t, func() {
		s := NewMemoryStore[int]("defaults", WithCapacity(0), WithIDFunc(nil))

		Convey("Then defaults should be kept", func() {
			So(s.Capacity(), ShouldEqual, defaultCapacity)
			So(s.cfg.newID, ShouldNotBeNil)
		})
	})
}

func TestMemoryStoreConcurrency(t *testing.T) {
	Convey("Given a store under concurrent writers", t, func() {
		ctx := context.Background()
		s := NewMemoryStore[int]("concurrent", WithCapacity(50))

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					id, err := s.Put(ctx, w*1000+i)
					if err != nil {
						continue
					}
					_, _ = s.Get(ctx, id)
				}
			}(w)
		}
		wg.Wait()

		Convey("Then the store should stay within capacity", func() {
			So(s.Len(), ShouldEqual, 50)
		})
	})
}
