package filter

import (
	"testing"
	"time"

	"github.com/hatlonely/blockx/record"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStructureRender(t *testing.T) {
	Convey("渲染", t, func() {
		Convey("连接符只出现在子句之间", func() {
			s := NewStructure().
				And(Equals("dept").SetConstraint(10)).
				Or(ILike("name").SetConstraint("%smith%"))

			So(s.AsSQL(), ShouldEqual, "dept = :dept or name ilike :name")
			binds := s.BindValues()
			So(binds, ShouldHaveLength, 2)
			So(binds[0].Name, ShouldEqual, "dept")
			So(binds[0].Value, ShouldEqual, 10)
			So(binds[1].Name, ShouldEqual, "name")
			So(binds[1].Value, ShouldEqual, "smith")
			So(binds[1].Arg(), ShouldEqual, "%smith%")
		})

		Convey("区间过滤", func() {
			d1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			d2 := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)

			s := NewStructure().And(Between("hire_date", true).SetConstraint(d1, d2))
			So(s.AsSQL(), ShouldEqual, "(hire_date >= :hire_date0 and hire_date <= :hire_date1)")

			s = NewStructure().And(Between("hire_date", false).SetConstraint(d1, d2))
			So(s.AsSQL(), ShouldEqual, "(hire_date > :hire_date0 and hire_date < :hire_date1)")
		})

		Convey("没有约束的过滤条件渲染为恒假", func() {
			So(NewStructure().And(Equals("dept")).AsSQL(), ShouldEqual, False)
			So(NewStructure().And(Like("name")).AsSQL(), ShouldEqual, False)
			So(NewStructure().And(AnyOf("id")).BindValues(), ShouldBeEmpty)
		})

		Convey("显式命名的过滤条件即使没有约束也渲染占位符", func() {
			s := NewStructure().And(Equals("dept", WithName("master_id")))
			So(s.AsSQL(), ShouldEqual, "dept = :master_id")
			So(s.BindValues()[0].Value, ShouldBeNil)
		})

		Convey("有叶子条件的子结构加括号", func() {
			sub := NewStructure("names").
				And(Like("first").SetConstraint("a%")).
				Or(Like("last").SetConstraint("b%"))
			s := NewStructure().And(Equals("dept").SetConstraint(10)).AndStructure(sub)
			So(s.AsSQL(), ShouldEqual, "dept = :dept and (first like :first or last like :last)")
		})

		Convey("没有叶子条件的子结构不加括号", func() {
			inner := NewStructure("inner").And(Equals("a").SetConstraint(1))
			outer := NewStructure("outer").AndStructure(inner)
			s := NewStructure().And(Equals("b").SetConstraint(2)).AndStructure(outer)
			So(s.AsSQL(), ShouldEqual, "b = :b and (a = :a)")
		})

		Convey("空的子结构被折叠", func() {
			s := NewStructure().
				And(Equals("b").SetConstraint(2)).
				OrStructure(NewStructure("empty").AndStructure(NewStructure("deeper")))
			So(s.AsSQL(), ShouldEqual, "b = :b")
			So(NewStructure().AndStructure(NewStructure("x")).AsSQL(), ShouldEqual, "")
		})

		Convey("or 之后的 and 保持从左到右的语义", func() {
			s := NewStructure().
				And(Equals("a").SetConstraint(1)).
				Or(Equals("b").SetConstraint(2)).
				And(Equals("c").SetConstraint(3))
			So(s.AsSQL(), ShouldEqual, "(a = :a or b = :b) and c = :c")
		})

		Convey("位置占位符", func() {
			s := NewStructure().
				And(AnyOf("id").SetConstraint(1, 2, 3)).
				And(ILike("name").SetConstraint("%x%"))

			clause, binds := s.Render(DollarDialect{})
			So(clause, ShouldEqual, "id in ($1, $2, $3) and name ilike $4")
			So(binds, ShouldHaveLength, 4)

			clause, _ = s.Render(QuestionDialect{})
			So(clause, ShouldEqual, "id in (?, ?, ?) and lower(name) like lower(?)")
		})

		Convey("同名参数被重命名", func() {
			s := NewStructure().
				And(Equals("dept").SetConstraint(1), "user").
				And(Equals("dept").SetConstraint(2), "relation")
			So(s.AsSQL(), ShouldEqual, "dept = :dept and dept = :dept_2")
			binds := s.BindValues()
			So(binds[1].Name, ShouldEqual, "dept_2")
			So(binds[1].Value, ShouldEqual, 2)
		})

		Convey("子查询", func() {
			sub := NewStructure().And(Equals("loc").SetConstraint("NY"))
			s := NewStructure().And(SubQuery("dept_id", "depts", "id", sub))
			So(s.AsSQL(), ShouldEqual, "dept_id in (select id from depts where loc = :loc)")
			So(s.BindValues()[0].Value, ShouldEqual, "NY")
		})

		Convey("自定义子句", func() {
			s := NewStructure().And(Custom("salary * {} > {}",
				BindValue{Name: "rate", Value: 1.1},
				BindValue{Name: "min", Value: 1000},
			))
			So(s.AsSQL(), ShouldEqual, "salary * :rate > :min")

			clause, _ := s.Render(QuestionDialect{})
			So(clause, ShouldEqual, "salary * ? > ?")
		})

		Convey("多列包含", func() {
			s := NewStructure().And(Contains([]string{"first", "last"}, WithName("q")).SetConstraint("sm"))
			So(s.AsSQL(), ShouldEqual, "(first ilike :q0 or last ilike :q1)")
			So(s.BindValues()[0].Arg(), ShouldEqual, "%sm%")
		})
	})
}

func TestStructureAddDelete(t *testing.T) {
	Convey("添加与删除", t, func() {
		s := NewStructure().
			And(Equals("dept").SetConstraint(10)).
			Or(ILike("name").SetConstraint("%smith%"))
		before := s.AsSQL()
		beforeBinds := s.BindValues()

		Convey("删除刚添加的过滤条件恢复原状", func() {
			f := GreaterThan("salary", false).SetConstraint(100)
			s.And(f)
			So(s.AsSQL(), ShouldNotEqual, before)
			So(s.DeleteFilter(f), ShouldBeTrue)
			So(s.AsSQL(), ShouldEqual, before)
			So(s.BindValues(), ShouldResemble, beforeBinds)
		})

		Convey("删除刚添加的子结构恢复原状", func() {
			sub := NewStructure("sub").And(Equals("x").SetConstraint(1))
			s.OrStructure(sub)
			So(s.DeleteStructure(sub), ShouldBeTrue)
			So(s.AsSQL(), ShouldEqual, before)
		})

		Convey("重复添加同一实例不会重复", func() {
			f := Equals("loc").SetConstraint("NY")
			s.And(f).Or(f)
			So(s.Len(), ShouldEqual, 3)
			So(s.AsSQL(), ShouldEqual, before+" or loc = :loc")
		})

		Convey("显式同名条目被替换", func() {
			s.And(Equals("dept").SetConstraint(20), "dept")
			So(s.Len(), ShouldEqual, 2)
			So(s.AsSQL(), ShouldEqual, "name ilike :name and dept = :dept")
		})

		Convey("同一列上的多个条件都保留", func() {
			s := NewStructure().And(GreaterThan("sal", true).SetConstraint(1000))
			before := s.AsSQL()
			upper := LessThan("sal", true).SetConstraint(5000)
			s.And(upper)
			So(s.Len(), ShouldEqual, 2)
			So(s.AsSQL(), ShouldEqual, "sal >= :sal and sal <= :sal_2")
			So(s.Evaluate(record.MapRow{"sal": 3000}), ShouldBeTrue)
			So(s.Evaluate(record.MapRow{"sal": 6000}), ShouldBeFalse)

			So(s.DeleteFilter(upper), ShouldBeTrue)
			So(s.AsSQL(), ShouldEqual, before)
		})

		Convey("按名称删除先查找子结构", func() {
			sub := NewStructure("sub").And(Equals("x").SetConstraint(1), "dept")
			s.AndStructure(sub)
			So(s.DeleteName("dept"), ShouldBeTrue)
			So(sub.Len(), ShouldEqual, 0)
			So(s.Filter("dept"), ShouldNotBeNil)

			So(s.DeleteName("dept"), ShouldBeTrue)
			So(s.Filter("dept"), ShouldBeNil)
			So(s.DeleteName("dept"), ShouldBeFalse)
		})

		Convey("删除不存在的条目返回 false", func() {
			So(s.DeleteFilter(Equals("nope")), ShouldBeFalse)
			So(s.DeleteStructure(NewStructure()), ShouldBeFalse)
		})
	})
}

func TestStructureEvaluate(t *testing.T) {
	Convey("内存求值", t, func() {
		row := record.MapRow{
			"dept":      10,
			"name":      "John Smith",
			"salary":    1500.0,
			"hire_date": time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		}

		Convey("空结构为真", func() {
			So(NewStructure().Evaluate(row), ShouldBeTrue)
		})

		Convey("与渲染一致的折叠", func() {
			s := NewStructure().
				And(Equals("dept").SetConstraint(20)).
				Or(ILike("name").SetConstraint("%smith%"))
			So(s.Evaluate(row), ShouldBeTrue)

			s.And(GreaterThan("salary", false).SetConstraint(2000))
			So(s.Evaluate(row), ShouldBeFalse)
		})

		Convey("短路时不再求值", func() {
			called := false
			probe := Custom("1 = 1").WithEvaluator(func(record.Row) bool {
				called = true
				return true
			})
			NewStructure().And(Equals("dept").SetConstraint(10)).Or(probe).Evaluate(row)
			So(called, ShouldBeFalse)

			NewStructure().And(Equals("dept").SetConstraint(99)).And(probe).Evaluate(row)
			So(called, ShouldBeFalse)
		})

		Convey("各类过滤条件", func() {
			d1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
			d2 := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
			So(Between("hire_date", true).SetConstraint(d1, d2).Evaluate(row), ShouldBeTrue)
			So(Between("hire_date", false).SetConstraint(d1, d2).Evaluate(row), ShouldBeFalse)
			So(LessThan("salary", true).SetConstraint(1500).Evaluate(row), ShouldBeTrue)
			So(AnyOf("dept").SetConstraint(10, 20).Evaluate(row), ShouldBeTrue)
			So(NoneOf("dept").SetConstraint(10, 20).Evaluate(row), ShouldBeFalse)
			So(Like("name").SetConstraint("John%").Evaluate(row), ShouldBeTrue)
			So(Like("name").SetConstraint("john%").Evaluate(row), ShouldBeFalse)
			So(Contains([]string{"dept", "name"}).SetConstraint("SMI").Evaluate(row), ShouldBeTrue)
			So(Equals("dept").Evaluate(row), ShouldBeFalse)
		})

		Convey("子查询未解析时不受限", func() {
			f := SubQuery("dept", "depts", "id", nil)
			So(f.Evaluate(row), ShouldBeTrue)
			f.Resolve([]any{20, 30})
			So(f.Evaluate(row), ShouldBeFalse)
			f.Resolve([]any{int64(10)})
			So(f.Evaluate(row), ShouldBeTrue)
		})
	})
}

func TestStructureMongo(t *testing.T) {
	Convey("渲染为 mongo 文档", t, func() {
		So(NewStructure().ToMongo(), ShouldResemble, map[string]any{})

		s := NewStructure().
			And(Equals("dept").SetConstraint(10)).
			Or(AnyOf("loc").SetConstraint("NY", "LA")).
			Or(Between("salary", true).SetConstraint(100, 200))

		So(s.ToMongo(), ShouldResemble, map[string]any{
			"$or": []any{
				map[string]any{"dept": 10},
				map[string]any{"loc": map[string]any{"$in": []any{"NY", "LA"}}},
				map[string]any{"salary": map[string]any{"$gte": 100, "$lte": 200}},
			},
		})

		s.And(ILike("name").SetConstraint("sm%"))
		doc := s.ToMongo()
		and, ok := doc["$and"].([]any)
		So(ok, ShouldBeTrue)
		So(and, ShouldHaveLength, 2)
		So(and[1], ShouldResemble, map[string]any{"name": map[string]any{"$regex": "^sm.*$", "$options": "i"}})
	})
}

func TestStructureClone(t *testing.T) {
	Convey("克隆后互不影响，参数名保持不变", t, func() {
		f := Equals("dept").SetConstraint(10)
		s := NewStructure().And(f).AndStructure(NewStructure("sub").And(Like("name").SetConstraint("a%")))
		c := s.Clone()

		So(c.AsSQL(), ShouldEqual, s.AsSQL())
		f.SetConstraint(20)
		So(c.BindValues()[0].Value, ShouldEqual, 10)
		So(s.BindValues()[0].Value, ShouldEqual, 20)
		So(c.Filters(), ShouldHaveLength, 2)
		So(c.Filters()[0].Name(), ShouldEqual, "dept")
	})
}
