package fixture

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/internal/serde"
	"github.com/lk2023060901/fixture-garden-go/internal/storage"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

type fxTag struct {
	ID   int64  `serde:"id,pk"`
	Name string `serde:"name"`
}

func (*fxTag) ModelLabel() string { return "fx.tag" }

type fxPost struct {
	ID    int64   `serde:"id,pk"`
	Title string  `serde:"title"`
	Tags  []int64 `serde:"tags,m2m=fx.tag"`
}

func (*fxPost) ModelLabel() string { return "fx.post" }

type fxAccount struct {
	ID   int64  `serde:"id,pk"`
	Name string `serde:"name"`
}

func (*fxAccount) ModelLabel() string { return "fx.account" }

type fxAdmin struct {
	fxAccount
	Level int32 `serde:"level"`
}

func (*fxAdmin) ModelLabel() string { return "fx.admin" }

type fxPage struct {
	ID   int64  `serde:"id,pk"`
	Site string `serde:"site"`
	Path string `serde:"path"`
}

func (*fxPage) ModelLabel() string { return "fx.page" }

func (p *fxPage) NaturalKey() []any { return []any{p.Site, p.Path} }

type fxLink struct {
	ID   int64 `serde:"id,pk"`
	Page int64 `serde:"page,fk=fx.page"`
}

func (*fxLink) ModelLabel() string { return "fx.link" }

func init() {
	model.MustRegister(&fxTag{})
	model.MustRegister(&fxPost{})
	model.MustRegister(&fxAccount{})
	model.MustRegister(&fxAdmin{})
	model.MustRegister(&fxPage{})
	model.MustRegister(&fxLink{})
}

func seedStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemoryStore()

	require.NoError(t, st.Save(ctx, &fxTag{ID: 1, Name: "go"}))
	require.NoError(t, st.Save(ctx, &fxTag{ID: 2, Name: "etcd"}))
	require.NoError(t, st.Save(ctx, &fxPost{ID: 10, Title: "streams"}))
	require.NoError(t, st.SaveM2M(ctx, "fx.post", 10, "tags", []any{int64(1), int64(2)}))
	require.NoError(t, st.Save(ctx, &fxAccount{ID: 5, Name: "root"}))
	require.NoError(t, st.Save(ctx, &fxAdmin{fxAccount: fxAccount{ID: 5}, Level: 3}))
	return st
}

func TestDumpLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)
	defer src.Close()

	var buf bytes.Buffer
	n, err := Dump(ctx, src, []string{"fx.tag", "fx.post"}, serde.FormatJSON, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	dst := storage.NewMemoryStore()
	defer dst.Close()
	loaded, err := Load(ctx, dst, serde.FormatJSON, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)

	post, err := dst.Get(ctx, "fx.post", 10)
	require.NoError(t, err)
	assert.Equal(t, "streams", post.(*fxPost).Title)
	assert.Equal(t, []int64{1, 2}, post.(*fxPost).Tags)
}

func TestDumpDeduplicatesParentRecords(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)
	defer src.Close()

	// fx.admin 展开出的 fx.account 记录与 fx.account 自身的记录重复，只保留一条。
	var buf bytes.Buffer
	n, err := Dump(ctx, src, []string{"fx.account", "fx.admin"}, serde.FormatJSON, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, strings.Count(buf.String(), `"fx.account"`))

	dst := storage.NewMemoryStore()
	defer dst.Close()
	loaded, err := Load(ctx, dst, serde.FormatJSON, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	admin, err := dst.Get(ctx, "fx.admin", 5)
	require.NoError(t, err)
	assert.Equal(t, "root", admin.(*fxAdmin).Name)
	assert.EqualValues(t, 3, admin.(*fxAdmin).Level)
}

func TestDumpAllLabels(t *testing.T) {
	ctx := context.Background()
	src := seedStore(t)
	defer src.Close()

	var buf bytes.Buffer
	_, err := Dump(ctx, src, nil, serde.FormatYAML, &buf)
	require.NoError(t, err)
	// 全量导出覆盖本包注册的标签。
	for _, label := range []string{"fx.tag", "fx.post", "fx.account", "fx.admin"} {
		assert.Contains(t, buf.String(), label)
	}
}

func TestDumpNaturalKeysKeepDistinctRecords(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	defer st.Close()
	require.NoError(t, st.Save(ctx, &fxPage{ID: 1, Site: "a", Path: "bc"}))
	require.NoError(t, st.Save(ctx, &fxPage{ID: 2, Site: "ab", Path: "c"}))

	// 两条自然键各分量不同，即使拼接结果相同也不能在去重时合并。
	var buf bytes.Buffer
	n, err := Dump(ctx, st, []string{"fx.page"}, serde.FormatJSON, &buf, serde.WithNaturalPrimaryKeys(true))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDumpLoadNaturalForeignKeys(t *testing.T) {
	ctx := context.Background()
	src := storage.NewMemoryStore()
	defer src.Close()
	require.NoError(t, src.Save(ctx, &fxPage{ID: 1, Site: "a", Path: "bc"}))
	require.NoError(t, src.Save(ctx, &fxLink{ID: 10, Page: 1}))

	// 自然键模式下外键替换为目标页面的自然键。
	var buf bytes.Buffer
	_, err := Dump(ctx, src, []string{"fx.link"}, serde.FormatJSON, &buf, serde.WithNaturalPrimaryKeys(true))
	require.NoError(t, err)

	// 目标存储中同一页面使用不同主键，装载后外键指向它。
	dst := storage.NewMemoryStore()
	defer dst.Close()
	require.NoError(t, dst.Save(ctx, &fxPage{ID: 77, Site: "a", Path: "bc"}))

	loaded, err := Load(ctx, dst, serde.FormatJSON, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)

	link, err := dst.Get(ctx, "fx.link", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 77, link.(*fxLink).Page)
}

func TestLoadStopsAtFirstError(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemoryStore()
	defer st.Close()

	stream := `[{"model":"fx.tag","pk":1,"fields":{"name":"go"}},` +
		`{"model":"fx.ghost","pk":2,"fields":{}}]`
	loaded, err := Load(ctx, st, serde.FormatJSON, strings.NewReader(stream))
	assert.ErrorIs(t, err, merr.ErrModelNotFound)
	// 失败前的记录已经生效。
	assert.Equal(t, 1, loaded)

	got, err := st.Get(ctx, "fx.tag", 1)
	require.NoError(t, err)
	assert.Equal(t, "go", got.(*fxTag).Name)
}
