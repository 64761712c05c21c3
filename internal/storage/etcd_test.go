package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fixture-garden-go/pkg/util/etcd"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

var (
	embedOnce sync.Once
	embedErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	etcd.StopEtcdServer()
	os.Exit(code)
}

// newEmbedEtcdStore 复用单例嵌入式 etcd，按 root 隔离各测试的键空间。
func newEmbedEtcdStore(t *testing.T, root string) *EtcdStore {
	t.Helper()

	embedOnce.Do(func() {
		dir, err := os.MkdirTemp("", "fixture-etcd-*")
		if err != nil {
			embedErr = err
			return
		}
		embedErr = etcd.InitEtcdServer(true, "", dir, filepath.Join(dir, "etcd.log"), "error")
	})
	require.NoError(t, embedErr)

	client, err := etcd.GetEmbedEtcdClient()
	require.NoError(t, err)

	st, err := NewEtcdStore(context.Background(), client, root)
	require.NoError(t, err)
	return st
}

func TestEtcdStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skip embedded etcd in short mode")
	}

	ctx := context.Background()
	st := newEmbedEtcdStore(t, "/fixture-test/roundtrip")

	require.NoError(t, st.Save(ctx, &stUser{ID: 1, Name: "ada"}))
	require.NoError(t, st.Save(ctx, &stUser{ID: 2, Name: "bob"}))
	require.NoError(t, st.Save(ctx, &stTeam{ID: 1, Name: "core"}))
	require.NoError(t, st.SaveM2M(ctx, "store.team", 1, "members", []any{int64(1), int64(2)}))

	got, err := st.Get(ctx, "store.user", 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.(*stUser).Name)

	team, err := st.Get(ctx, "store.team", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, team.(*stTeam).Members)

	// List 只取行键，m2m 子键不会混入。
	users, err := st.List(ctx, "store.user")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.EqualValues(t, 1, users[0].(*stUser).ID)

	_, err = st.Get(ctx, "store.user", 99)
	assert.ErrorIs(t, err, merr.ErrStoreKeyNotFound)

	require.NoError(t, st.Delete(ctx, "store.team", 1))
	assert.ErrorIs(t, st.Delete(ctx, "store.team", 1), merr.ErrStoreKeyNotFound)
	_, err = st.Get(ctx, "store.team", 1)
	assert.ErrorIs(t, err, merr.ErrStoreKeyNotFound)
}

func TestEtcdStoreParentMerge(t *testing.T) {
	if testing.Short() {
		t.Skip("skip embedded etcd in short mode")
	}

	ctx := context.Background()
	st := newEmbedEtcdStore(t, "/fixture-test/parent")

	require.NoError(t, st.Save(ctx, &stUser{ID: 7, Name: "ada"}))
	require.NoError(t, st.Save(ctx, &stStaff{stUser: stUser{ID: 7}, Badge: "b-42"}))

	got, err := st.Get(ctx, "store.staff", 7)
	require.NoError(t, err)
	assert.Equal(t, "b-42", got.(*stStaff).Badge)
	assert.Equal(t, "ada", got.(*stStaff).Name)
}
