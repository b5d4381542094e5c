package record

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestRecord(transactional bool) *Record {
	a := NewArena(transactional)
	r := a.New([]Column{
		{Name: "id", Type: TypeInt},
		{Name: "name", Type: TypeString},
		{Name: "hire_date", Type: TypeDate},
	}, StateConsistent)
	r.Load(map[string]any{
		"id":        int64(1),
		"name":      "smith",
		"hire_date": time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	return r
}

func TestRecordSet(t *testing.T) {
	Convey("脏列维护", t, func() {
		r := newTestRecord(true)

		Convey("设置为同步值不标脏", func() {
			r.Set("name", "smith")
			So(r.IsDirty("name"), ShouldBeFalse)
			So(r.HasChanges(), ShouldBeFalse)
		})

		Convey("设置为其他值标脏，改回同步值后取消", func() {
			r.Set("name", "jones")
			So(r.IsDirty("name"), ShouldBeTrue)
			So(r.Dirty(), ShouldResemble, []string{"name"})

			r.Set("name", "smith")
			So(r.IsDirty("name"), ShouldBeFalse)
		})

		Convey("时间按时刻比较", func() {
			same := time.Date(2020, 1, 2, 8, 0, 0, 0, time.FixedZone("CST", 8*3600))
			r.Set("hire_date", same)
			So(r.IsDirty("hire_date"), ShouldBeFalse)

			r.Set("hire_date", same.Add(time.Second))
			So(r.IsDirty("hire_date"), ShouldBeTrue)
		})

		Convey("数值忽略具体类型", func() {
			r.Set("id", 1)
			So(r.IsDirty("id"), ShouldBeFalse)
			r.Set("id", 1.0)
			So(r.IsDirty("id"), ShouldBeFalse)
			r.Set("id", 2)
			So(r.IsDirty("id"), ShouldBeTrue)
		})

		Convey("写入过程中不标脏", func() {
			r.SetFlushing(true)
			r.Set("name", "jones")
			So(r.Get("name"), ShouldEqual, "jones")
			So(r.IsDirty("name"), ShouldBeFalse)
			r.SetFlushing(false)
		})

		Convey("空列名和未知列被忽略", func() {
			r.Set("", 1)
			r.Set("unknown", 1)
			So(r.HasChanges(), ShouldBeFalse)
			So(r.IndexOf("unknown"), ShouldEqual, -1)
			So(r.Get("unknown"), ShouldBeNil)
			_, ok := r.Column("unknown")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRecordState(t *testing.T) {
	Convey("非事务上下文中写入状态立即变为 Consistent", t, func() {
		for _, s := range []State{StateUpdated, StateDeleted} {
			r := newTestRecord(false)
			So(r.SetState(s), ShouldBeTrue)
			So(r.State(), ShouldEqual, StateConsistent)
		}

		a := NewArena(false)
		r := a.New(Columns("id"), StateNew)
		So(r.SetState(StateInsert), ShouldBeTrue)
		So(r.State(), ShouldEqual, StateInsert)
		So(r.SetState(StateInserted), ShouldBeTrue)
		So(r.State(), ShouldEqual, StateConsistent)
	})

	Convey("事务上下文中保留写入状态", t, func() {
		r := newTestRecord(true)
		So(r.SetState(StateUpdate), ShouldBeTrue)
		So(r.SetState(StateUpdated), ShouldBeTrue)
		So(r.State(), ShouldEqual, StateUpdated)
		So(r.SetState(StateConsistent), ShouldBeTrue)
		So(r.State(), ShouldEqual, StateConsistent)

		So(r.SetState(StateDelete), ShouldBeTrue)
		So(r.SetState(StateDeleted), ShouldBeTrue)
		So(r.State(), ShouldEqual, StateDeleted)
	})

	Convey("非法迁移被忽略", t, func() {
		r := newTestRecord(true)
		So(r.SetState(StateInsert), ShouldBeFalse)
		So(r.State(), ShouldEqual, StateConsistent)
	})

	Convey("非事务上下文中写入完成状态总是变为 Consistent", t, func() {
		a := NewArena(false)
		for _, target := range []State{StateInserted, StateUpdated, StateDeleted} {
			r := a.New(Columns("x"), StateNew)
			So(r.SetState(target), ShouldBeTrue)
			So(r.State(), ShouldEqual, StateConsistent)
		}

		r := a.New(Columns("x"), StateNew)
		So(r.SetState(StateDelete), ShouldBeFalse)
		So(r.State(), ShouldEqual, StateNew)
	})

	Convey("QueryFilter 不参与增删改", t, func() {
		a := NewArena(true)
		r := a.New(Columns("name"), StateQueryFilter)
		So(r.SetState(StateUpdate), ShouldBeFalse)
		So(r.SetState(StateDelete), ShouldBeFalse)
		So(r.State(), ShouldEqual, StateQueryFilter)

		c := newTestRecord(true)
		So(c.SetState(StateQueryFilter), ShouldBeFalse)
	})
}

func TestRecordSetCleanAndRefresh(t *testing.T) {
	Convey("SetClean 当前值成为同步值", t, func() {
		r := newTestRecord(true)
		r.SetLocked(true)
		r.Set("name", "jones")

		r.SetClean(false)
		So(r.HasChanges(), ShouldBeFalse)
		So(r.Synced("name"), ShouldEqual, "jones")
		So(r.Locked(), ShouldBeTrue)

		r.SetClean(true)
		So(r.Locked(), ShouldBeFalse)
	})

	Convey("Refresh 丢弃本地修改并重新读取", t, func() {
		r := newTestRecord(true)
		r.Set("name", "jones")
		r.SetFailed(true)

		backend := map[string]any{"id": int64(1), "name": "brown"}
		r.Refresh(func(column string) (any, bool) {
			v, ok := backend[column]
			return v, ok
		})

		So(r.Get("name"), ShouldEqual, "brown")
		So(r.Synced("name"), ShouldEqual, "brown")
		So(r.Get("hire_date"), ShouldBeNil)
		So(r.HasChanges(), ShouldBeFalse)
		So(r.Failed(), ShouldBeFalse)
	})
}

func TestArena(t *testing.T) {
	Convey("Arena", t, func() {
		a := NewArena(true)
		r1 := a.New(Columns("id"), StateNew)
		r2 := a.New(Columns("id"), StateNew)
		So(r1.Handle(), ShouldNotEqual, r2.Handle())
		So(a.Get(r1.Handle()), ShouldEqual, r1)
		So(a.Len(), ShouldEqual, 2)

		a.Release(r1.Handle())
		So(a.Get(r1.Handle()), ShouldBeNil)

		a.Reset()
		r3 := a.New(Columns("id"), StateNew)
		So(r3.Handle(), ShouldBeGreaterThan, r2.Handle())
		So(a.Len(), ShouldEqual, 1)
	})
}

func TestTypes(t *testing.T) {
	Convey("类型解析与转换", t, func() {
		So(ParseType("varchar"), ShouldEqual, TypeString)
		So(ParseType("DATETIME"), ShouldEqual, TypeDateTime)
		So(ParseType("blob"), ShouldEqual, TypeUnknown)

		v, err := TypeInt.Coerce("42")
		So(err, ShouldBeNil)
		So(v, ShouldEqual, int64(42))

		_, err = TypeInt.Coerce("abc")
		So(err, ShouldNotBeNil)

		d, err := TypeDate.Coerce("2020-01-02 15:04:05")
		So(err, ShouldBeNil)
		So(d.(time.Time).Hour(), ShouldEqual, 0)

		So(InferType(1.5), ShouldEqual, TypeDecimal)
		So(InferType("x"), ShouldEqual, TypeString)
	})

	Convey("Compare", t, func() {
		c, ok := Compare(1, 2.5)
		So(ok, ShouldBeTrue)
		So(c, ShouldEqual, -1)

		_, ok = Compare(nil, 1)
		So(ok, ShouldBeFalse)

		c, ok = Compare("b", "a")
		So(ok, ShouldBeTrue)
		So(c, ShouldEqual, 1)
	})
}
