package form

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hatlonely/blockx/block"
	"github.com/hatlonely/blockx/datasource"
	"github.com/hatlonely/blockx/event"
	"github.com/hatlonely/blockx/filter"
	"github.com/hatlonely/blockx/message"
	"github.com/hatlonely/blockx/record"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func newDepts() *datasource.MemoryTable {
	t, err := datasource.NewMemoryTableWithOptions(&datasource.MemoryTableOptions{
		Name: "depts",
		Columns: []record.Column{
			{Name: "id", Type: record.TypeInt},
			{Name: "name", Type: record.TypeString},
		},
		Key:     []string{"id"},
		Sorting: "id",
		Rows: []map[string]any{
			{"id": 10, "name": "rd"},
			{"id": 20, "name": "sales"},
			{"id": 30, "name": "hr"},
		},
	})
	if err != nil {
		panic(err)
	}
	return t
}

func newEmps() *datasource.MemoryTable {
	t, err := datasource.NewMemoryTableWithOptions(&datasource.MemoryTableOptions{
		Name: "emps",
		Columns: []record.Column{
			{Name: "id", Type: record.TypeInt},
			{Name: "name", Type: record.TypeString},
			{Name: "dept_id", Type: record.TypeInt},
		},
		Key:     []string{"id"},
		Sorting: "id",
		Rows: []map[string]any{
			{"id": 1, "name": "alice", "dept_id": 10},
			{"id": 2, "name": "bob", "dept_id": 10},
			{"id": 3, "name": "carol", "dept_id": 20},
		},
	})
	if err != nil {
		panic(err)
	}
	return t
}

type fixture struct {
	form     *Form
	loop     *event.ManualLoop
	recorder *message.Recorder
	depts    *datasource.MemoryTable
	emps     *datasource.MemoryTable
}

func newFixture(allowOrphan bool) *fixture {
	loop := event.NewManualLoop()
	recorder := message.NewRecorder()
	f, err := NewFormWithOptions(&Options{
		Stack: event.StackOptions{WatchdogInterval: time.Hour},
	}, loop, recorder)
	if err != nil {
		panic(err)
	}

	fx := &fixture{form: f, loop: loop, recorder: recorder, depts: newDepts(), emps: newEmps()}
	f.AddBlock("depts", fx.depts, nil)
	f.AddBlock("emps", fx.emps, &BlockOptions{Overlay: []record.Column{{Name: "dept_name"}}})

	r, err := block.NewRelation("dept_emps", block.MustNewKey("depts", "id"), block.MustNewKey("emps", "dept_id"), allowOrphan)
	if err != nil {
		panic(err)
	}
	f.Link(r)
	return fx
}

// run 执行完所有推迟的分发
func (fx *fixture) run() {
	fx.loop.RunPending()
}

func names(b *Block) []any {
	var out []any
	for _, rec := range b.ResultSet().Records() {
		out = append(out, rec.Get("name"))
	}
	return out
}

func TestFormQuery(t *testing.T) {
	Convey("查询与导航", t, func() {
		fx := newFixture(false)
		f := fx.form
		depts, emps := f.Block("depts"), f.Block("emps")

		f.ExecuteQuery("depts")
		So(depts.ResultSet().Len(), ShouldEqual, 3)
		So(emps.ResultSet().Len(), ShouldEqual, 0)
		fx.run()
		So(names(emps), ShouldResemble, []any{"alice", "bob"})
		So(f.Stack().Pending(), ShouldEqual, 0)

		Convey("导航后级联查询从块", func() {
			f.Navigate("depts", 1)
			fx.run()
			So(depts.Get("name"), ShouldEqual, "sales")
			So(names(emps), ShouldResemble, []any{"carol"})

			f.Next("depts")
			fx.run()
			So(emps.ResultSet().IsEmpty(), ShouldBeTrue)

			f.Previous("depts")
			fx.run()
			So(names(emps), ShouldResemble, []any{"carol"})
		})

		Convey("越界导航不变", func() {
			f.Navigate("depts", 5)
			fx.run()
			So(depts.ResultSet().CurrentIndex(), ShouldEqual, 0)
			So(emps.ResultSet().Len(), ShouldEqual, 2)
		})

		Convey("块被占用时导航被拒绝并报告", func() {
			So(f.Transaction().Start(event.Update, depts.ID(), 0), ShouldEqual, event.None)
			f.Navigate("depts", 1)
			fx.run()
			So(depts.ResultSet().CurrentIndex(), ShouldEqual, 0)
			So(fx.recorder.Count(message.CodeBusy), ShouldEqual, 1)

			f.Transaction().Finish(depts.ID())
			f.Navigate("depts", 1)
			fx.run()
			So(depts.ResultSet().CurrentIndex(), ShouldEqual, 1)
		})

		Convey("固定条件", func() {
			depts.Where().And(filter.GreaterThan("id", false).SetConstraint(15))
			f.Requery("depts")
			fx.run()
			So(names(depts), ShouldResemble, []any{"sales", "hr"})
			So(names(emps), ShouldResemble, []any{"carol"})
		})

		Convey("未知的块被报告", func() {
			f.ExecuteQuery("missing")
			fx.run()
			So(fx.recorder.Count(message.CodeUnknownBlock), ShouldEqual, 1)
		})
	})

	Convey("按例查询", t, func() {
		fx := newFixture(false)
		f := fx.form
		depts, emps := f.Block("depts"), f.Block("emps")

		Convey("主块为空时从块不能进入查询模式", func() {
			f.EnterQuery("emps")
			fx.run()
			So(emps.InQueryMode(), ShouldBeFalse)
			So(fx.recorder.Count(message.CodeQueryNotAllowed), ShouldEqual, 1)
		})

		Convey("主块的按例条件", func() {
			f.ExecuteQuery("depts")
			fx.run()

			f.EnterQuery("depts")
			fx.run()
			So(depts.InQueryMode(), ShouldBeTrue)
			So(depts.ResultSet().IsEmpty(), ShouldBeTrue)
			So(emps.ResultSet().IsEmpty(), ShouldBeTrue)
			So(f.Transaction().Event(depts.ID()), ShouldEqual, event.Query)

			f.SetField("depts", "name", "s")
			f.ExecuteQuery("depts")
			fx.run()
			So(depts.InQueryMode(), ShouldBeFalse)
			So(f.Transaction().Busy(depts.ID()), ShouldBeFalse)
			So(names(depts), ShouldResemble, []any{"sales"})
			So(names(emps), ShouldResemble, []any{"carol"})
			So(depts.QBE().Last(), ShouldResemble, map[string]any{"name": "s"})
		})

		Convey("查询模式下其他操作被拒绝", func() {
			f.EnterQuery("depts")
			fx.run()
			f.Navigate("depts", 1)
			fx.run()
			So(fx.recorder.Count(message.CodeBusy), ShouldEqual, 1)

			f.CancelQuery("depts")
			fx.run()
			So(depts.InQueryMode(), ShouldBeFalse)
			So(f.Transaction().Busy(depts.ID()), ShouldBeFalse)
		})

		Convey("非法的示例值被报告", func() {
			f.EnterQuery("depts")
			f.SetField("depts", "id", "abc")
			fx.run()
			So(fx.recorder.Count(message.CodeInvalidValue), ShouldEqual, 1)
		})
	})

	Convey("从块的按例条件限制主块", t, func() {
		fx := newFixture(true)
		f := fx.form
		depts, emps := f.Block("depts"), f.Block("emps")

		f.EnterQuery("depts")
		f.EnterQuery("emps")
		fx.run()
		So(emps.InQueryMode(), ShouldBeTrue)

		f.SetField("emps", "name", "car")
		f.ExecuteQuery("emps")
		fx.run()

		So(depts.InQueryMode(), ShouldBeFalse)
		So(emps.InQueryMode(), ShouldBeFalse)
		So(names(depts), ShouldResemble, []any{"sales"})
		So(names(emps), ShouldResemble, []any{"carol"})
	})
}

func TestFormEdit(t *testing.T) {
	ctx := context.Background()

	Convey("修改", t, func() {
		fx := newFixture(false)
		f := fx.form
		depts, emps := f.Block("depts"), f.Block("emps")
		f.ExecuteQuery("depts")
		fx.run()

		Convey("修改非关系键不重新查询从块", func() {
			f.SetField("emps", "name", "alicia")
			fx.run()
			So(emps.Current().State(), ShouldEqual, record.StateUpdate)

			f.SetField("depts", "name", "research")
			fx.run()
			So(emps.ResultSet().Len(), ShouldEqual, 2)
			So(emps.Current().Get("name"), ShouldEqual, "alicia")
		})

		Convey("修改关系键后重新查询从块", func() {
			f.SetField("depts", "id", 99)
			fx.run()
			So(emps.ResultSet().IsEmpty(), ShouldBeTrue)
		})

		Convey("从块有未提交的修改时不重新查询", func() {
			f.SetField("emps", "name", "alicia")
			f.Navigate("depts", 1)
			fx.run()
			So(fx.recorder.Count(message.CodePendingChanges), ShouldEqual, 1)
			So(emps.Current().Get("name"), ShouldEqual, "alicia")
		})

		Convey("提交", func() {
			f.SetField("emps", "name", "alicia")
			f.SetField("emps", "dept_name", "rd")
			f.Commit()
			fx.run()
			So(emps.Current().State(), ShouldEqual, record.StateConsistent)

			row, err := fx.emps.Refresh(ctx, emps.Current())
			So(err, ShouldBeNil)
			So(row["name"], ShouldEqual, "alicia")
		})

		Convey("回滚", func() {
			f.SetField("emps", "name", "alicia")
			f.Rollback()
			fx.run()
			So(emps.Current().Get("name"), ShouldEqual, "alice")
			So(emps.Current().State(), ShouldEqual, record.StateConsistent)
		})

		Convey("后端已被修改时报告加锁失败", func() {
			other := datasource.NewResultSet(fx.emps, nil, nil, nil)
			So(other.Execute(ctx, nil), ShouldBeNil)
			So(other.Set(ctx, other.Current(), "name", "alison"), ShouldBeNil)
			So(other.Commit(ctx), ShouldBeNil)

			f.SetField("emps", "name", "alicia")
			fx.run()
			So(fx.recorder.Count(message.CodeLockFailed), ShouldEqual, 1)
			So(emps.Current().Get("name"), ShouldEqual, "alice")
		})

		Convey("新增从块记录时复制关系键", func() {
			f.Insert("emps")
			fx.run()
			rec := emps.Current()
			So(rec.State(), ShouldEqual, record.StateInsert)
			So(rec.Get("dept_id"), ShouldEqual, int64(10))

			f.SetField("emps", "id", 4)
			f.SetField("emps", "name", "dave")
			f.Commit()
			fx.run()
			So(fx.emps.Len(), ShouldEqual, 4)
			So(rec.State(), ShouldEqual, record.StateConsistent)
		})

		Convey("有从块记录时不能删除主块记录", func() {
			f.Delete("depts")
			fx.run()
			So(fx.recorder.Count(message.CodeDetailExists), ShouldEqual, 1)
			So(depts.Current().State(), ShouldEqual, record.StateConsistent)
		})

		Convey("删除", func() {
			f.Delete("emps")
			f.Commit()
			fx.run()
			So(fx.emps.Len(), ShouldEqual, 2)
			So(names(emps), ShouldResemble, []any{"bob"})
		})
	})

	Convey("分发失败清空队列并报告", t, func() {
		fx := newFixture(false)
		f := fx.form

		ran := false
		f.Do("boom", func(ctx context.Context) error {
			f.Do("after", func(ctx context.Context) error {
				ran = true
				return nil
			})
			return errors.New("boom")
		})
		fx.run()
		So(ran, ShouldBeFalse)
		So(fx.recorder.Count(message.CodeDispatcherFailed), ShouldEqual, 1)
		So(f.Stack().Pending(), ShouldEqual, 0)
	})
}

const formYAML = `
blocks:
  - name: depts
    dataSource:
      type: MemoryTable
      options:
        name: depts
        key: [id]
        sorting: id
        columns:
          - name: id
            type: int
          - name: name
            type: string
        rows:
          - {id: 10, name: rd}
          - {id: 20, name: sales}
  - name: emps
    dataSource:
      type: MemoryTable
      options:
        name: emps
        key: [id]
        columns:
          - name: id
            type: int
          - name: dept_id
            type: int
        rows:
          - {id: 1, dept_id: 10}
          - {id: 2, dept_id: 20}
relations:
  - name: dept_emps
    master: {block: depts, fields: [id]}
    detail: {block: emps, fields: [dept_id]}
  - name: loop
    master: {block: depts, fields: [id]}
    detail: {block: depts, fields: [id]}
stack:
  watchdogInterval: 1h
`

func TestLoadForm(t *testing.T) {
	Convey("从配置文件创建表单", t, func() {
		path := filepath.Join(t.TempDir(), "form.yaml")
		So(os.WriteFile(path, []byte(formYAML), 0644), ShouldBeNil)

		loop := event.NewManualLoop()
		recorder := message.NewRecorder()
		f, err := LoadForm(path, loop, recorder)
		So(err, ShouldBeNil)
		defer f.Close()

		So(f.Blocks(), ShouldHaveLength, 2)
		So(recorder.Count(message.CodeSelfReference), ShouldEqual, 1)
		So(f.Relations("emps"), ShouldHaveLength, 1)

		f.ExecuteQuery("depts")
		loop.RunPending()
		So(f.Block("emps").ResultSet().Len(), ShouldEqual, 1)
		So(f.Block("emps").Get("id"), ShouldEqual, int64(1))

		Convey("配置文件变化后重新登记关系", func() {
			So(f.Watch(path), ShouldBeNil)
			changed := formYAML[:strings.Index(formYAML, "relations:")] + "stack:\n  watchdogInterval: 1h\n"
			So(os.WriteFile(path, []byte(changed), 0644), ShouldBeNil)

			for i := 0; i < 100 && len(f.Relations("emps")) > 0; i++ {
				time.Sleep(20 * time.Millisecond)
				loop.RunPending()
			}
			So(f.Relations("emps"), ShouldBeEmpty)
		})
	})

	Convey("配置错误", t, func() {
		path := filepath.Join(t.TempDir(), "form.yaml")
		So(os.WriteFile(path, []byte("blocks:\n  - name: x\n    dataSource:\n      type: Unknown\n"), 0644), ShouldBeNil)
		_, err := LoadForm(path, event.NewManualLoop(), nil)
		So(err, ShouldNotBeNil)

		_, err = LoadForm(filepath.Join(t.TempDir(), "missing.yaml"), event.NewManualLoop(), nil)
		So(err, ShouldNotBeNil)
	})
}
