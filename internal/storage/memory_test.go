package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

type stUser struct {
	ID   int64  `serde:"id,pk"`
	Name string `serde:"name"`
}

func (*stUser) ModelLabel() string { return "store.user" }

type stStaff struct {
	stUser
	Badge string `serde:"badge"`
}

func (*stStaff) ModelLabel() string { return "store.staff" }

type stTeam struct {
	ID      int64   `serde:"id,pk"`
	Name    string  `serde:"name"`
	Members []int64 `serde:"members,m2m=store.user"`
}

func (*stTeam) ModelLabel() string { return "store.team" }

func init() {
	model.MustRegister(&stUser{})
	model.MustRegister(&stStaff{})
	model.MustRegister(&stTeam{})
}

func TestMemoryStoreSaveGet(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	defer st.Close()

	require.NoError(t, st.Save(ctx, &stUser{ID: 1, Name: "ada"}))

	got, err := st.Get(ctx, "store.user", 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.(*stUser).Name)

	_, err = st.Get(ctx, "store.user", 99)
	assert.ErrorIs(t, err, merr.ErrStoreKeyNotFound)

	assert.ErrorIs(t, st.Save(ctx, &stUser{Name: "no-pk"}), merr.ErrPkMissing)
	assert.Positive(t, st.Ops())
}

func TestMemoryStoreM2M(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	defer st.Close()

	require.NoError(t, st.Save(ctx, &stTeam{ID: 1, Name: "core"}))
	require.NoError(t, st.SaveM2M(ctx, "store.team", 1, "members", []any{int64(3), int64(4)}))

	got, err := st.Get(ctx, "store.team", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, got.(*stTeam).Members)

	// 覆盖写入语义。
	require.NoError(t, st.SaveM2M(ctx, "store.team", 1, "members", []any{int64(5)}))
	got, err = st.Get(ctx, "store.team", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, got.(*stTeam).Members)
}

func TestMemoryStoreParentMerge(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	defer st.Close()

	// 父行与子行分别保存，读取子模型时沿父链合并。
	require.NoError(t, st.Save(ctx, &stUser{ID: 7, Name: "ada"}))
	require.NoError(t, st.Save(ctx, &stStaff{stUser: stUser{ID: 7}, Badge: "b-42"}))

	got, err := st.Get(ctx, "store.staff", 7)
	require.NoError(t, err)
	assert.Equal(t, "b-42", got.(*stStaff).Badge)
	assert.Equal(t, "ada", got.(*stStaff).Name)
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	defer st.Close()

	require.NoError(t, st.Save(ctx, &stUser{ID: 2, Name: "b"}))
	require.NoError(t, st.Save(ctx, &stUser{ID: 1, Name: "a"}))

	users, err := st.List(ctx, "store.user")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.EqualValues(t, 1, users[0].(*stUser).ID)
	assert.EqualValues(t, 2, users[1].(*stUser).ID)

	_, err = st.List(ctx, "store.ghost")
	assert.ErrorIs(t, err, merr.ErrModelNotFound)

	require.NoError(t, st.Delete(ctx, "store.user", 1))
	assert.ErrorIs(t, st.Delete(ctx, "store.user", 1), merr.ErrStoreKeyNotFound)

	users, err = st.List(ctx, "store.user")
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
