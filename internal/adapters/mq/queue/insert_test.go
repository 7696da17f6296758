package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/scorepipe/internal/adapters/mq/queue"
	"github.com/okian/scorepipe/internal/adapters/repository"
	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func doc(id string) *model.ScoreDocument {
	return &model.ScoreDocument{ScoreID: id, UserID: "u1", ChartID: "c1"}
}

// failingStore fails InsertMany until healed.
type failingStore struct {
	*repository.Memory
	mu   sync.Mutex
	fail bool
}

func (f *failingStore) InsertMany(ctx context.Context, docs []*model.ScoreDocument) ([]string, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return f.Memory.InsertMany(ctx, docs)
}

func TestInsertQueue_Check(t *testing.T) {
	Convey("Given a queue with a blacklist and one stored score", t, func() {
		ctx := context.Background()
		store := repository.NewMemory()
		_, _ = store.Insert(ctx, doc("Tstored"))
		q := queue.NewInsertQueue("u1", store, map[string]struct{}{"Tbanned": {}})

		Convey("Then blacklisted ids are skipped", func() {
			skip, reason, err := q.Check(ctx, "Tbanned")
			So(err, ShouldBeNil)
			So(skip, ShouldBeTrue)
			So(reason, ShouldEqual, queue.SkipBlacklisted)
		})

		Convey("Then stored ids are skipped", func() {
			skip, reason, _ := q.Check(ctx, "Tstored")
			So(skip, ShouldBeTrue)
			So(reason, ShouldEqual, queue.SkipExists)
		})

		Convey("Then queued ids are skipped", func() {
			ok, err := q.Add(ctx, doc("Tnew"))
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			skip, reason, _ := q.Check(ctx, "Tnew")
			So(skip, ShouldBeTrue)
			So(reason, ShouldEqual, queue.SkipInFlight)
		})

		Convey("Then unknown ids pass", func() {
			skip, reason, _ := q.Check(ctx, "Tfresh")
			So(skip, ShouldBeFalse)
			So(reason, ShouldEqual, queue.SkipNone)
		})
	})
}

func TestInsertQueue_AddFlush(t *testing.T) {
	Convey("Given a queue with batch size 3", t, func() {
		ctx := context.Background()
		store := repository.NewMemory()
		q := queue.NewInsertQueue("u1", store, nil, queue.WithBatchSize(3))

		Convey("When the same id is added twice", func() {
			first, _ := q.Add(ctx, doc("T1"))
			second, _ := q.Add(ctx, doc("T1"))

			Convey("Then only the first is queued", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(q.Pending(), ShouldEqual, 1)
			})
		})

		Convey("When the buffer fills", func() {
			for i := 0; i < 3; i++ {
				_, err := q.Add(ctx, doc(fmt.Sprintf("T%d", i)))
				So(err, ShouldBeNil)
			}

			Convey("Then it flushes on its own", func() {
				So(q.Pending(), ShouldEqual, 0)
				So(store.ScoreCount(), ShouldEqual, 3)
				So(len(q.Inserted()), ShouldEqual, 3)
			})
		})

		Convey("When flushing twice and on an empty queue", func() {
			_, _ = q.Add(ctx, doc("T1"))
			n1, err1 := q.Flush(ctx)
			n2, err2 := q.Flush(ctx)

			Convey("Then the second flush is a no-op", func() {
				So(err1, ShouldBeNil)
				So(n1, ShouldEqual, 1)
				So(err2, ShouldBeNil)
				So(n2, ShouldEqual, 0)
			})

			Convey("Then a flushed id cannot be queued again", func() {
				ok, _ := q.Add(ctx, doc("T1"))
				So(ok, ShouldBeFalse)
			})
		})

		Convey("When another import wrote the score first", func() {
			_, _ = q.Add(ctx, doc("T1"))
			_, _ = store.Insert(ctx, doc("T1"))
			n, err := q.Flush(ctx)

			Convey("Then the flush reports it as dropped, not an error", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				So(q.Dropped(), ShouldResemble, []string{"T1"})
			})
		})
	})
}

func TestInsertQueue_FlushError(t *testing.T) {
	Convey("Given a store that fails writes", t, func() {
		ctx := context.Background()
		store := &failingStore{Memory: repository.NewMemory(), fail: true}
		q := queue.NewInsertQueue("u1", store, nil)
		_, _ = q.Add(ctx, doc("T1"))

		_, err := q.Flush(ctx)

		Convey("Then the error propagates and the batch is kept", func() {
			So(err, ShouldNotBeNil)
			So(q.Pending(), ShouldEqual, 1)
		})

		Convey("Then a later flush succeeds", func() {
			store.mu.Lock()
			store.fail = false
			store.mu.Unlock()

			n, err := q.Flush(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})
	})
}

func TestInsertQueue_InsertNow(t *testing.T) {
	Convey("Given a queue in force mode", t, func() {
		ctx := context.Background()
		store := repository.NewMemory()
		q := queue.NewInsertQueue("u1", store, nil)

		ok, err := q.InsertNow(ctx, doc("T1"))

		Convey("Then the score is written immediately", func() {
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(store.ScoreCount(), ShouldEqual, 1)
			So(q.Pending(), ShouldEqual, 0)
		})

		Convey("Then an already persisted score is a skip", func() {
			other := queue.NewInsertQueue("u1", store, nil)
			again, err := other.InsertNow(ctx, doc("T1"))
			So(err, ShouldBeNil)
			So(again, ShouldBeFalse)
		})
	})
}

func TestInsertQueue_Concurrent(t *testing.T) {
	Convey("Given many goroutines adding the same ids", t, func() {
		ctx := context.Background()
		store := repository.NewMemory()
		q := queue.NewInsertQueue("u1", store, nil, queue.WithBatchSize(7))

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					_, _ = q.Add(ctx, doc(fmt.Sprintf("T%d", i)))
				}
			}()
		}
		wg.Wait()
		_, err := q.Flush(ctx)

		Convey("Then each id is persisted once", func() {
			So(err, ShouldBeNil)
			So(store.ScoreCount(), ShouldEqual, 50)
			So(len(q.Inserted()), ShouldEqual, 50)
			So(len(q.Dropped()), ShouldEqual, 0)
		})
	})
}
