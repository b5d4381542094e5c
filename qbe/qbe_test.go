package qbe

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/kv/serializer"
	"github.com/hatlonely/blockx/kv/store"
	"github.com/hatlonely/blockx/record"
	"github.com/hatlonely/blockx/ref"
	. "github.com/smartystreets/goconvey/convey"
)

var empColumns = []record.Column{
	{Name: "name", Type: record.TypeString},
	{Name: "age", Type: record.TypeInt},
	{Name: "salary", Type: record.TypeDecimal},
	{Name: "hired", Type: record.TypeDate},
	{Name: "active", Type: record.TypeBool},
	{Name: "note"},
}

func TestQueryByExample(t *testing.T) {
	ctx := context.Background()

	Convey("按例查询", t, func() {
		q := New("emps", empColumns, nil, nil)
		So(q.Record().State(), ShouldEqual, record.StateQueryFilter)
		So(q.IsEmpty(), ShouldBeTrue)

		Convey("字符串默认部分匹配", func() {
			So(q.SetValue("name", "al"), ShouldBeNil)
			f := q.Filter("name").(*filter.LikeFilter)
			So(f.Constraint(), ShouldEqual, "%al%")
			So(q.Structure().AsSQL(), ShouldEqual, "name like :name")

			So(q.SetValue("name", "a_c"), ShouldBeNil)
			So(q.Filter("name").(*filter.LikeFilter).Constraint(), ShouldEqual, "a_c")
		})

		Convey("数值和布尔默认相等", func() {
			So(q.SetValue("age", "30"), ShouldBeNil)
			So(q.Value("age"), ShouldEqual, int64(30))
			So(q.Filter("age").Kind(), ShouldEqual, filter.KindEquals)

			So(q.SetValue("salary", "1.5"), ShouldBeNil)
			So(q.Filter("salary").Kind(), ShouldEqual, filter.KindEquals)

			So(q.SetValue("active", "true"), ShouldBeNil)
			So(q.Value("active"), ShouldEqual, true)

			So(q.Structure().AsSQL(), ShouldEqual, "age = :age and salary = :salary and active = :active")
		})

		Convey("日期默认为当天的闭区间", func() {
			So(q.SetValue("hired", "2024-03-01"), ShouldBeNil)
			f := q.Filter("hired").(*filter.BetweenFilter)
			lo, hi := f.Constraint()
			day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			So(lo.(time.Time).Equal(day), ShouldBeTrue)
			So(hi.(time.Time).Equal(day.AddDate(0, 0, 1).Add(-time.Nanosecond)), ShouldBeTrue)
			So(f.Inclusive(), ShouldBeTrue)

			s := q.Structure()
			So(s.Evaluate(record.MapRow{"hired": day.Add(23 * time.Hour)}), ShouldBeTrue)
			So(s.Evaluate(record.MapRow{"hired": day.AddDate(0, 0, 1)}), ShouldBeFalse)
		})

		Convey("类型未知的列按值推断", func() {
			So(q.SetValue("note", 3), ShouldBeNil)
			So(q.Filter("note").Kind(), ShouldEqual, filter.KindEquals)
			So(q.SetValue("note", "x"), ShouldBeNil)
			So(q.Filter("note").Kind(), ShouldEqual, filter.KindLike)
		})

		Convey("空值不产生条件", func() {
			So(q.SetValue("name", "al"), ShouldBeNil)
			So(q.SetValue("name", ""), ShouldBeNil)
			So(q.Filter("name"), ShouldBeNil)
			So(q.IsEmpty(), ShouldBeTrue)
			So(q.SetValue("age", nil), ShouldBeNil)
			So(q.IsEmpty(), ShouldBeTrue)
		})

		Convey("错误的列或值", func() {
			So(q.SetValue("missing", 1), ShouldNotBeNil)
			So(q.SetValue("age", "abc"), ShouldNotBeNil)
			So(q.IsEmpty(), ShouldBeTrue)
		})

		Convey("指定的过滤条件不被示例值覆盖", func() {
			q.SetFilter("age", filter.GreaterThan("age", true).SetConstraint(18))
			So(q.SetValue("age", 5), ShouldBeNil)
			So(q.Filter("age").Kind(), ShouldEqual, filter.KindGreaterThan)
			So(q.Structure().Evaluate(record.MapRow{"age": 20}), ShouldBeTrue)

			q.SetFilter("age", nil)
			So(q.Filter("age").Kind(), ShouldEqual, filter.KindEquals)
		})

		Convey("Structure 返回副本", func() {
			So(q.SetValue("age", 30), ShouldBeNil)
			s := q.Structure()
			s.DeleteName("age")
			So(q.IsEmpty(), ShouldBeFalse)
		})

		Convey("Clear 保存上一次查询，Repeat 恢复", func() {
			So(q.SetValue("name", "al"), ShouldBeNil)
			q.SetFilter("age", filter.LessThan("age", false).SetConstraint(40))
			So(q.Clear(ctx), ShouldBeNil)
			So(q.IsEmpty(), ShouldBeTrue)
			So(q.Value("name"), ShouldBeNil)
			So(q.Last(), ShouldResemble, map[string]any{"name": "al", "age": nil})

			So(q.Repeat(), ShouldBeNil)
			So(q.Value("name"), ShouldEqual, "al")
			So(q.Filter("age").Kind(), ShouldEqual, filter.KindLessThan)
			So(q.Structure().AsSQL(), ShouldEqual, "name like :name and age < :age")
		})

		Convey("清空空查询不覆盖上一次查询", func() {
			So(q.SetValue("name", "al"), ShouldBeNil)
			So(q.Clear(ctx), ShouldBeNil)
			So(q.Clear(ctx), ShouldBeNil)
			So(q.Last(), ShouldResemble, map[string]any{"name": "al"})
		})
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	Convey("MapStore 历史", t, func() {
		h, err := NewHistoryWithOptions(nil)
		So(err, ShouldBeNil)

		q := New("emps", empColumns, h, nil)
		ok, err := q.Restore(ctx)
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)

		So(q.SetValue("name", "al"), ShouldBeNil)
		So(q.SetValue("age", 30), ShouldBeNil)
		So(q.Clear(ctx), ShouldBeNil)

		savedAt, err := q.SavedAt(ctx)
		So(err, ShouldBeNil)
		So(savedAt.IsZero(), ShouldBeFalse)

		other := New("emps", empColumns, h, nil)
		ok, err = other.Restore(ctx)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(other.Value("name"), ShouldEqual, "al")
		So(other.Structure().AsSQL(), ShouldEqual, "name like :name and age = :age")

		So(h.Clear(ctx, "emps"), ShouldBeNil)
		values, err := h.Load(ctx, "emps")
		So(err, ShouldBeNil)
		So(values, ShouldBeNil)
	})

	Convey("存储中的空条目视为没有历史", t, func() {
		h, err := NewHistoryWithOptions(nil)
		So(err, ShouldBeNil)
		So(h.store.Set(ctx, h.prefix+"emps", nil), ShouldBeNil)

		values, err := h.Load(ctx, "emps")
		So(err, ShouldBeNil)
		So(values, ShouldBeNil)

		savedAt, err := h.SavedAt(ctx, "emps")
		So(err, ShouldBeNil)
		So(savedAt.IsZero(), ShouldBeTrue)
	})

	Convey("BoltDBStore 历史在重新打开后仍然存在", t, func() {
		path := filepath.Join(t.TempDir(), "history.db")
		options := &HistoryOptions{
			Prefix: "qbe:",
			Store: &ref.TypeOptions{
				Namespace: store.Namespace,
				Type:      "BoltDBStore",
				Options: &store.BoltDBStoreOptions{
					DBPath: path,
					ValSerializer: &ref.TypeOptions{
						Namespace: serializer.Namespace,
						Type:      "JSONSerializer",
					},
				},
			},
		}

		h, err := NewHistoryWithOptions(options)
		So(err, ShouldBeNil)
		q := New("emps", empColumns, h, nil)
		So(q.SetValue("age", 30), ShouldBeNil)
		So(q.SetValue("hired", "2024-03-01"), ShouldBeNil)
		So(q.Clear(ctx), ShouldBeNil)
		So(h.Close(), ShouldBeNil)

		h, err = NewHistoryWithOptions(options)
		So(err, ShouldBeNil)
		defer h.Close()

		q = New("emps", empColumns, h, nil)
		ok, err := q.Restore(ctx)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(q.Value("age"), ShouldEqual, int64(30))
		So(q.Value("hired").(time.Time).Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
	})
}
