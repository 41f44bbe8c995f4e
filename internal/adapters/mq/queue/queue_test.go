package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/aurelian-hq/missiond/internal/adapters/mq/queue"
	"github.com/aurelian-hq/missiond/internal/domain/mission"
	. "github.com/smartystreets/goconvey/convey"
)

func entry(id string) queue.Entry {
	return mission.ActivityEntry{
		ID:        id,
		MissionID: "m-1",
		UserID:    "alice",
		Delta:     mission.Resources{"gold": 10},
		CreatedAt: time.Now(),
	}
}

func TestEnqueueDequeue(t *testing.T) {
	ctx := context.Background()

	Convey("Given an open queue", t, func() {
		q := queue.NewInMemory(queue.WithCapacity(8))

		Convey("When entries are enqueued", func() {
			So(q.Enqueue(ctx, entry("a")), ShouldBeTrue)
			So(q.Enqueue(ctx, entry("b")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 2)

			Convey("Then they dequeue in order", func() {
				ch := q.Dequeue(ctx)
				first := <-ch
				second := <-ch
				So(first.ID, ShouldEqual, "a")
				So(second.ID, ShouldEqual, "b")
			})
		})
	})
}

func TestEnqueueBackpressure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a full queue", t, func() {
		q := queue.NewInMemory(queue.WithCapacity(1))
		So(q.Enqueue(ctx, entry("a")), ShouldBeTrue)

		Convey("Then further enqueues are refused without blocking", func() {
			So(q.Enqueue(ctx, entry("b")), ShouldBeFalse)
		})
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with buffered entries", t, func() {
		q := queue.NewInMemory(queue.WithCapacity(4))
		So(q.Enqueue(ctx, entry("a")), ShouldBeTrue)

		Convey("When it is closed", func() {
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil) // idempotent

			Convey("Then enqueues are refused but the buffer drains", func() {
				So(q.Enqueue(ctx, entry("b")), ShouldBeFalse)

				ch := q.Dequeue(ctx)
				got, ok := <-ch
				So(ok, ShouldBeTrue)
				So(got.ID, ShouldEqual, "a")

				_, ok = <-ch
				So(ok, ShouldBeFalse) // channel closes after drain
			})
		})
	})
}
