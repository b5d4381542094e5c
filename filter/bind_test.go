package filter

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDialect(t *testing.T) {
	Convey("按名称选择方言", t, func() {
		So(DialectByName("mysql"), ShouldHaveSameTypeAs, QuestionDialect{})
		So(DialectByName("sqlite3"), ShouldHaveSameTypeAs, SQLiteDialect{})
		So(DialectByName("postgres"), ShouldHaveSameTypeAs, DollarDialect{})
		So(DialectByName(""), ShouldHaveSameTypeAs, NamedDialect{})
	})

	Convey("Renderer 按顺序收集参数", t, func() {
		r := NewRenderer(DollarDialect{})
		So(r.Bind(BindValue{Name: "a", Value: 1}), ShouldEqual, "$1")
		So(r.Bind(BindValue{Name: "a", Value: 2}), ShouldEqual, "$2")
		So(r.Args(), ShouldResemble, []any{1, 2})
		So(r.BindValues()[1].Name, ShouldEqual, "a_2")

		So(NewRenderer(SQLiteDialect{}).ILike("name", ":name"), ShouldEqual, "lower(name) like lower(:name)")
	})

	Convey("参数名替换列名中的特殊字符", t, func() {
		s := NewStructure().And(Equals("e.dept").SetConstraint(1))
		So(s.AsSQL(), ShouldEqual, "e.dept = :e_dept")
	})
}
