package ref

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type testSource struct {
	Table string
}

type testSourceOptions struct {
	Table string
}

func newTestSource(options *testSourceOptions) (*testSource, error) {
	if options == nil {
		return &testSource{Table: "default"}, nil
	}
	if options.Table == "" {
		return nil, errors.New("table is required")
	}
	return &testSource{Table: options.Table}, nil
}

func newPlainSource() *testSource {
	return &testSource{Table: "plain"}
}

type mapOptions map[string]string

func (m mapOptions) ConvertTo(object any) error {
	options, ok := object.(*testSourceOptions)
	if !ok {
		return errors.New("unexpected target")
	}
	options.Table = m["table"]
	return nil
}

func TestRegisterAndNew(t *testing.T) {
	Convey("测试 Register 和 New", t, func() {
		So(Register("test", "Source", newTestSource), ShouldBeNil)
		So(Register("test", "PlainSource", newPlainSource), ShouldBeNil)

		Convey("带参数构造", func() {
			obj, err := New("test", "Source", &testSourceOptions{Table: "emps"})
			So(err, ShouldBeNil)
			So(obj.(*testSource).Table, ShouldEqual, "emps")
		})

		Convey("指针参数允许 nil", func() {
			obj, err := New("test", "Source", nil)
			So(err, ShouldBeNil)
			So(obj.(*testSource).Table, ShouldEqual, "default")
		})

		Convey("构造函数返回错误", func() {
			_, err := New("test", "Source", &testSourceOptions{})
			So(err, ShouldNotBeNil)
		})

		Convey("无参构造", func() {
			obj, err := New("test", "PlainSource", nil)
			So(err, ShouldBeNil)
			So(obj.(*testSource).Table, ShouldEqual, "plain")
		})

		Convey("Convertable 参数", func() {
			obj, err := NewWithTypeOptions(&TypeOptions{
				Namespace: "test",
				Type:      "Source",
				Options:   mapOptions{"table": "depts"},
			})
			So(err, ShouldBeNil)
			So(obj.(*testSource).Table, ShouldEqual, "depts")
		})

		Convey("参数类型不匹配", func() {
			_, err := New("test", "Source", "depts")
			So(err, ShouldNotBeNil)
		})

		Convey("未注册的类型", func() {
			_, err := New("test", "NotExist", nil)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRegisterT(t *testing.T) {
	Convey("测试 RegisterT 和 NewT", t, func() {
		So(RegisterT[*testSource](newTestSource), ShouldBeNil)

		source, err := NewT[*testSource](&testSourceOptions{Table: "emps"})
		So(err, ShouldBeNil)
		So(source.Table, ShouldEqual, "emps")

		Convey("相同函数重复注册被忽略", func() {
			So(RegisterT[*testSource](newTestSource), ShouldBeNil)
		})

		Convey("不同函数重复注册返回错误", func() {
			So(RegisterT[*testSource](newPlainSource), ShouldNotBeNil)
		})
	})
}

func TestNewConstructor(t *testing.T) {
	Convey("测试构造函数签名校验", t, func() {
		_, err := newConstructor("not a func")
		So(err, ShouldNotBeNil)

		_, err = newConstructor(func(a, b int) int { return a + b })
		So(err, ShouldNotBeNil)

		_, err = newConstructor(func() (int, int) { return 0, 0 })
		So(err, ShouldNotBeNil)

		c, err := newConstructor(func() (*testSource, error) { return nil, nil })
		So(err, ShouldBeNil)
		So(c.returnsError, ShouldBeTrue)
		So(c.hasOptions, ShouldBeFalse)
	})
}
