package event

import (
	"testing"

	"github.com/hatlonely/blockx/log/logger"
	"github.com/hatlonely/blockx/record"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTransaction(t *testing.T) {
	Convey("Transaction", t, func() {
		tx := NewTransaction(logger.NewDiscard())
		depts, emps := BlockID(1), BlockID(2)

		Convey("空闲时占用成功", func() {
			So(tx.Start(Delete, depts, record.Handle(7)), ShouldEqual, None)
			So(tx.Event(depts), ShouldEqual, Delete)
			h, ok := tx.Record(depts)
			So(ok, ShouldBeTrue)
			So(h, ShouldEqual, record.Handle(7))
		})

		Convey("已被占用时返回占用者且不覆盖", func() {
			So(tx.Start(Navigate, depts, record.Handle(1)), ShouldEqual, None)
			So(tx.Start(Delete, depts, record.Handle(2)), ShouldEqual, Navigate)
			So(tx.Event(depts), ShouldEqual, Navigate)
			h, _ := tx.Record(depts)
			So(h, ShouldEqual, record.Handle(1))
		})

		Convey("不同的块互不影响", func() {
			So(tx.Start(Query, depts, 0), ShouldEqual, None)
			So(tx.Start(Query, emps, 0), ShouldEqual, None)
			So(tx.Busy(depts), ShouldBeTrue)
			So(tx.Busy(emps), ShouldBeTrue)
		})

		Convey("Finish 后可以再次占用", func() {
			So(tx.Start(Lock, depts, 0), ShouldEqual, None)
			tx.Finish(depts)
			So(tx.Busy(depts), ShouldBeFalse)
			_, ok := tx.Record(depts)
			So(ok, ShouldBeFalse)
			So(tx.Start(Update, depts, 0), ShouldEqual, None)
		})

		Convey("None 不占用", func() {
			So(tx.Start(None, depts, 0), ShouldEqual, None)
			So(tx.Busy(depts), ShouldBeFalse)
		})
	})
}
