package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

type person struct {
	ID        int64  `serde:"id,pk"`
	FirstName string `serde:"first_name"`
	LastName  string `serde:"last_name"`
	secret    string // 未导出，不参与序列化
}

func (*person) ModelLabel() string { return "test.person" }

type author struct {
	person
	Alias string `serde:"alias"`
}

func (*author) ModelLabel() string { return "test.author" }

type article struct {
	ID         int64     `serde:"id,pk"`
	Title      string    `serde:"title"`
	Author     int64     `serde:"author,fk=test.author"`
	Categories []int64   `serde:"categories,m2m=test.category"`
	PubDate    time.Time `serde:"pub_date"`
	Raw        []byte    `serde:"raw"`
	Draft      bool      `serde:"draft"`
	Internal   string    `serde:"-"`
}

func (*article) ModelLabel() string { return "test.article" }

// implicitPK 未标注主键，应退回到名为 ID 的字段。
type implicitPK struct {
	ID   uint64
	Name string
}

func (*implicitPK) ModelLabel() string { return "test.implicit" }

func TestSchemaLocalFieldsOnly(t *testing.T) {
	s, err := SchemaOf(&author{})
	require.NoError(t, err)

	// 子模型只暴露本地声明的字段，父模型字段归属父 Schema。
	assert.Equal(t, []string{"alias"}, s.FieldNames())
	require.NotNil(t, s.Parent)
	assert.Equal(t, "test.person", s.Parent.Label)
	assert.Equal(t, []string{"first_name", "last_name"}, s.Parent.FieldNames())

	// 子模型自身无主键声明，主键沿父链继承。
	assert.Nil(t, s.PKField)
	a := &author{person: person{ID: 42}}
	assert.EqualValues(t, int64(42), s.PK(a))
	assert.False(t, s.PKIsZero(a))

	require.NoError(t, s.SetPK(&author{}, "7"))
}

func TestSchemaTagParsing(t *testing.T) {
	s, err := SchemaOf(&article{})
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "author", "categories", "pub_date", "raw", "draft"}, s.FieldNames())

	f, ok := s.FieldByName("author")
	require.True(t, ok)
	assert.Equal(t, KindFK, f.Kind)
	assert.Equal(t, "test.author", f.Ref)

	f, ok = s.FieldByName("categories")
	require.True(t, ok)
	assert.Equal(t, KindM2M, f.Kind)
	assert.Equal(t, "test.category", f.Ref)

	_, ok = s.FieldByName("internal")
	assert.False(t, ok)
}

func TestSchemaImplicitPK(t *testing.T) {
	s, err := SchemaOf(&implicitPK{})
	require.NoError(t, err)
	require.NotNil(t, s.PKField)
	assert.Equal(t, "id", s.PKField.Name)
	assert.Equal(t, []string{"name"}, s.FieldNames())
}

// droppedPK 的 ID 字段被显式排除，不应被当作隐式主键复活。
type droppedPK struct {
	ID   int64 `serde:"-"`
	Name string
}

func (*droppedPK) ModelLabel() string { return "test.dropped" }

func TestSchemaExcludedIDIsNotImplicitPK(t *testing.T) {
	_, err := SchemaOf(&droppedPK{})
	assert.ErrorIs(t, err, merr.ErrModelIllegalLabel)
}

func TestSchemaRejectsBadModels(t *testing.T) {
	_, err := buildSchema(nil, "BadLabel")
	assert.ErrorIs(t, err, merr.ErrModelIllegalLabel)

	assert.NoError(t, ValidateLabel("app.article"))
	assert.Error(t, ValidateLabel("article"))
	assert.Error(t, ValidateLabel("App.Article"))
}

func TestValuesEncoding(t *testing.T) {
	s, err := SchemaOf(&article{})
	require.NoError(t, err)

	pub := time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)
	a := &article{
		ID:         100,
		Title:      "hello",
		Author:     7,
		Categories: []int64{1, 2},
		PubDate:    pub,
		Raw:        []byte{0x1, 0x2},
		Draft:      true,
	}

	pk, fields, m2m, err := s.Values(a)
	require.NoError(t, err)
	assert.EqualValues(t, int64(100), pk)
	assert.Equal(t, "2025-11-03T08:00:00Z", fields["pub_date"])
	assert.Equal(t, "AQI=", fields["raw"])
	assert.Equal(t, true, fields["draft"])
	assert.Equal(t, []any{int64(1), int64(2)}, m2m["categories"])
	assert.NotContains(t, fields, "categories")
}

func TestApplyCoercion(t *testing.T) {
	s, err := SchemaOf(&article{})
	require.NoError(t, err)

	a := &article{}
	// JSON 解码产生 float64 与字符串，赋值时需要转换回字段类型。
	err = s.Apply(a, map[string]any{
		"title":    "hello",
		"author":   float64(7),
		"pub_date": "2025-11-03T08:00:00Z",
		"raw":      "AQI=",
		"draft":    "true",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.Author)
	assert.Equal(t, time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC), a.PubDate.UTC())
	assert.Equal(t, []byte{0x1, 0x2}, a.Raw)
	assert.True(t, a.Draft)

	err = s.Apply(a, map[string]any{"nope": 1}, false)
	assert.ErrorIs(t, err, merr.ErrFieldNotFound)
	assert.NoError(t, s.Apply(a, map[string]any{"nope": 1}, true))

	err = s.Apply(a, map[string]any{"author": "not-a-number"}, false)
	assert.ErrorIs(t, err, merr.ErrFieldTypeMismatch)
}

func TestRouteSplitsM2M(t *testing.T) {
	s, err := SchemaOf(&article{})
	require.NoError(t, err)

	fields, m2m, err := s.Route(map[string]any{
		"title":      "hello",
		"categories": []any{float64(1), float64(2)},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", fields["title"])
	assert.Equal(t, []any{float64(1), float64(2)}, m2m["categories"])

	_, _, err = s.Route(map[string]any{"ghost": 1}, false)
	assert.ErrorIs(t, err, merr.ErrFieldNotFound)
}

func TestApplyM2MAndCoerceRef(t *testing.T) {
	s, err := SchemaOf(&article{})
	require.NoError(t, err)

	a := &article{}
	require.NoError(t, s.ApplyM2M(a, "categories", []any{float64(3), "4"}))
	assert.Equal(t, []int64{3, 4}, a.Categories)

	f, _ := s.FieldByName("categories")
	ref, err := s.CoerceRef(f, "5")
	require.NoError(t, err)
	assert.Equal(t, int64(5), ref)

	assert.ErrorIs(t, s.ApplyM2M(a, "title", nil), merr.ErrFieldNotFound)
}
