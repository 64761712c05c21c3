package serde

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/internal/storage"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

func pick(t *testing.T, objs []*DeserializedObject, label string) *DeserializedObject {
	t.Helper()
	for _, obj := range objs {
		if obj.Object.ModelLabel() == label {
			return obj
		}
	}
	t.Fatalf("no deserialized object for label %s", label)
	return nil
}

func roundTrip(t *testing.T, format string, opts ...Option) []*DeserializedObject {
	t.Helper()
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, Serialize(ctx, format, &buf, sampleObjects(), opts...))

	objs, err := DeserializeAll(ctx, format, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	// author 对象展开出 person 记录，共 5 条。
	require.Len(t, objs, 5)
	return objs
}

func verifySample(t *testing.T, objs []*DeserializedObject) {
	t.Helper()

	article := pick(t, objs, "blog.article")
	a := article.Object.(*sdArticle)
	assert.EqualValues(t, 100, a.ID)
	assert.Equal(t, "Streaming fixtures", a.Title)
	assert.EqualValues(t, 7, a.Author)
	assert.True(t, a.PubDate.Equal(samplePubDate))
	assert.Equal(t, []byte{0x1, 0x2}, a.Raw)

	// 多对多数据在 Save 之前保持延迟状态，不写入实例字段。
	assert.Empty(t, a.Categories)
	require.Len(t, article.M2M["categories"], 2)

	author := pick(t, objs, "blog.author")
	assert.Equal(t, "ada", author.Object.(*sdAuthor).Alias)
	person := pick(t, objs, "blog.person")
	assert.Equal(t, "Ada", person.Object.(*sdPerson).FirstName)
}

func TestRoundTripAllFormats(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatJSONL, FormatXML, FormatYAML, FormatNative, FormatPB} {
		t.Run(format, func(t *testing.T) {
			verifySample(t, roundTrip(t, format))
		})
	}
}

func TestRoundTripIndented(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatXML, FormatNative} {
		t.Run(format, func(t *testing.T) {
			verifySample(t, roundTrip(t, format, WithIndent(true)))
		})
	}
}

func TestRoundTripNaturalKeys(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, Serialize(ctx, FormatJSON, &buf, sampleObjects(), WithNaturalPrimaryKeys(true)))

	objs, err := DeserializeAll(ctx, FormatJSON, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	category := pick(t, objs, "blog.category")
	assert.True(t, category.Object.(*sdCategory).ID == 0)
	assert.NotEmpty(t, category.Natural)
}

func TestSaveDeferredM2M(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	defer st.Close()

	for _, obj := range roundTrip(t, FormatJSON) {
		require.NoError(t, obj.Save(ctx, st))
	}

	got, err := st.Get(ctx, "blog.article", 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.(*sdArticle).Categories)

	// 子模型读取时合并父行数据。
	author, err := st.Get(ctx, "blog.author", 7)
	require.NoError(t, err)
	assert.Equal(t, "ada", author.(*sdAuthor).Alias)
	assert.Equal(t, "Ada", author.(*sdAuthor).FirstName)
}

func TestSaveResolvesNaturalKey(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	defer st.Close()
	require.NoError(t, st.Save(ctx, &sdCategory{ID: 1, Name: "go"}))

	objs, err := FromRecords([]*Record{{
		Model:   "blog.category",
		Natural: []any{"go"},
		Fields:  map[string]any{"name": "go"},
	}})
	require.NoError(t, err)
	require.NoError(t, objs[0].Save(ctx, st))
	assert.EqualValues(t, 1, objs[0].Object.(*sdCategory).ID)

	objs, err = FromRecords([]*Record{{
		Model:   "blog.category",
		Natural: []any{"ghost"},
		Fields:  map[string]any{"name": "ghost"},
	}})
	require.NoError(t, err)
	assert.ErrorIs(t, objs[0].Save(ctx, st), merr.ErrNaturalKeyUnresolved)

	objs, err = FromRecords([]*Record{{
		Model:  "blog.category",
		Fields: map[string]any{"name": "orphan"},
	}})
	require.NoError(t, err)
	assert.ErrorIs(t, objs[0].Save(ctx, st), merr.ErrPkMissing)
}

func TestSaveNaturalKeyComponentsKeepBoundaries(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	defer st.Close()
	require.NoError(t, st.Save(ctx, &sdTopic{ID: 1, Section: "a", Slug: "bc"}))

	// 分量拼接结果相同的另一组自然键不能命中已有行。
	objs, err := FromRecords([]*Record{{
		Model:   "blog.topic",
		Natural: []any{"ab", "c"},
		Fields:  map[string]any{"section": "ab", "slug": "c"},
	}})
	require.NoError(t, err)
	assert.ErrorIs(t, objs[0].Save(ctx, st), merr.ErrNaturalKeyUnresolved)

	got, err := st.Get(ctx, "blog.topic", 1)
	require.NoError(t, err)
	assert.Equal(t, "bc", got.(*sdTopic).Slug)
}

func TestRecordIdentityNaturalKeys(t *testing.T) {
	a := &Record{Model: "blog.topic", Natural: []any{"a", "bc"}}
	b := &Record{Model: "blog.topic", Natural: []any{"ab", "c"}}
	assert.NotEqual(t, a.Identity(), b.Identity())
	assert.Equal(t, a.Identity(), (&Record{Model: "blog.topic", Natural: []any{"a", "bc"}}).Identity())
}

func TestNaturalForeignKeys(t *testing.T) {
	ctx := context.Background()

	for _, format := range []string{FormatJSON, FormatJSONL, FormatXML, FormatYAML, FormatNative, FormatPB} {
		t.Run(format, func(t *testing.T) {
			st := storage.NewMemoryStore()
			defer st.Close()
			require.NoError(t, st.Save(ctx, &sdCategory{ID: 1, Name: "go"}))

			resolver := WithResolver(func(label string, pk any) (model.Model, error) {
				return st.Get(ctx, label, pk)
			})

			var buf bytes.Buffer
			err := Serialize(ctx, format, &buf,
				[]model.Model{&sdComment{ID: 5, Body: "nice", Category: 1}},
				WithNaturalPrimaryKeys(true), resolver)
			require.NoError(t, err)

			objs, err := DeserializeAll(ctx, format, bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			require.Len(t, objs, 1)

			// 外键以自然键形式延迟，Save 前不落到实例字段。
			comment := objs[0].Object.(*sdComment)
			assert.Zero(t, comment.Category)
			require.NoError(t, objs[0].Save(ctx, st))
			assert.EqualValues(t, 1, comment.Category)
		})
	}
}

func TestMalformedStreams(t *testing.T) {
	ctx := context.Background()

	_, err := DeserializeAll(ctx, FormatJSON, strings.NewReader("{broken"))
	assert.ErrorIs(t, err, merr.ErrStreamMalformed)

	_, err = DeserializeAll(ctx, FormatNative, strings.NewReader(`{"version":"2.0.0","objects":[]}`))
	assert.ErrorIs(t, err, merr.ErrVersionIncompatible)

	_, err = DeserializeAll(ctx, FormatXML, strings.NewReader(`<other></other>`))
	assert.ErrorIs(t, err, merr.ErrStreamMalformed)

	_, err = DeserializeAll(ctx, FormatPB, strings.NewReader("\x00\x00\x00\x04oops"))
	assert.ErrorIs(t, err, merr.ErrStreamMalformed)

	_, err = DeserializeAll(ctx, FormatJSON, strings.NewReader(`[{"pk":1,"fields":{}}]`))
	assert.ErrorIs(t, err, merr.ErrRecordCorrupted)
}
