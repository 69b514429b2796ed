package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/celestial/internal/adapters/mq/queue"
	"github.com/okian/celestial/internal/adapters/mq/worker"
	"github.com/okian/celestial/internal/domain/model"
	logging "github.com/okian/celestial/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	_ = logging.Init()
	goleak.VerifyTestMain(m)
}

// Mock implementations for testing.
type mockQueue struct {
	ch   chan model.Chunk
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{ch: make(chan model.Chunk, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.Chunk { return mq.ch }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.ch) })
	return nil
}

// labelPredictor labels every row by its period: >10 Confirmed, else Candidate.
type labelPredictor struct {
	err   error
	panic bool
	short bool
}

func (p *labelPredictor) Predict(_ context.Context, rows []model.Row) ([]model.Label, error) {
	if p.panic {
		panic("boom")
	}
	if p.err != nil {
		return nil, p.err
	}
	out := make([]model.Label, len(rows))
	for i, r := range rows {
		if r.Period > 10 {
			out[i] = model.LabelConfirmed
		} else {
			out[i] = model.LabelCandidate
		}
	}
	if p.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func rows(periods ...float64) []model.Row {
	out := make([]model.Row, len(periods))
	for i, p := range periods {
		out[i].Period = p
	}
	return out
}

func await(t *testing.T, reply <-chan model.ChunkResult) model.ChunkResult {
	t.Helper()
	select {
	case res := <-reply:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk result")
		return model.ChunkResult{}
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		q := newMockQueue()
		pred := &labelPredictor{}
		w := worker.NewInMemoryWorker(q, pred, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		defer func() {
			cancel()
			<-w.Done()
		}()

		reply := make(chan model.ChunkResult, 1)

		convey.Convey("When a chunk is queued", func() {
			q.ch <- model.Chunk{BatchID: "b1", Index: 3, Rows: rows(20, 1), Reply: reply}
			res := await(t, reply)

			convey.Convey("Then it should reply with labels in row order", func() {
				convey.So(res.Err, convey.ShouldBeNil)
				convey.So(res.BatchID, convey.ShouldEqual, "b1")
				convey.So(res.Index, convey.ShouldEqual, 3)
				convey.So(res.Labels, convey.ShouldResemble, []model.Label{model.LabelConfirmed, model.LabelCandidate})
			})
		})

		convey.Convey("When the predictor fails", func() {
			pred.err = errors.New("scaler mismatch")
			q.ch <- model.Chunk{BatchID: "b2", Rows: rows(1), Reply: reply}
			res := await(t, reply)

			convey.Convey("Then the error should be delivered", func() {
				convey.So(res.Err, convey.ShouldNotBeNil)
				convey.So(res.Labels, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the predictor panics", func() {
			pred.panic = true
			q.ch <- model.Chunk{BatchID: "b3", Rows: rows(1), Reply: reply}
			res := await(t, reply)

			convey.Convey("Then the panic should become an error", func() {
				convey.So(errors.Is(res.Err, worker.ErrPanic), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the predictor returns too few labels", func() {
			pred.short = true
			q.ch <- model.Chunk{BatchID: "b4", Rows: rows(1, 2), Reply: reply}
			res := await(t, reply)

			convey.Convey("Then the chunk should fail", func() {
				convey.So(res.Err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			err := w.Shutdown(shutdownCtx)
			again := w.Shutdown(shutdownCtx)

			convey.Convey("Then it should stop gracefully and idempotently", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		pool := worker.NewPool(4, q, &labelPredictor{})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.So(pool.Size(), convey.ShouldEqual, 4)
		pool.Start(ctx)

		convey.Convey("When many chunks are enqueued", func() {
			const chunks = 20
			reply := make(chan model.ChunkResult, chunks)
			for i := 0; i < chunks; i++ {
				err := q.Enqueue(ctx, model.Chunk{BatchID: "batch", Index: i, Rows: rows(float64(i)), Reply: reply})
				convey.So(err, convey.ShouldBeNil)
			}

			got := make(map[int]model.Label)
			for i := 0; i < chunks; i++ {
				res := await(t, reply)
				got[res.Index] = res.Labels[0]
			}

			convey.Convey("Then every chunk should be answered once", func() {
				convey.So(len(got), convey.ShouldEqual, chunks)
				convey.So(got[0], convey.ShouldEqual, model.LabelCandidate)
				convey.So(got[19], convey.ShouldEqual, model.LabelConfirmed)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When shutting down with work still queued", func() {
			reply := make(chan model.ChunkResult, 3)
			for i := 0; i < 3; i++ {
				_ = q.Enqueue(ctx, model.Chunk{BatchID: "drain", Index: i, Rows: rows(1), Reply: reply})
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then queued chunks should drain first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(reply), convey.ShouldEqual, 3)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool that never started", t, func() {
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(0, q, &labelPredictor{})

		convey.Convey("Then shutdown should only close the queue", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})
	})
}
