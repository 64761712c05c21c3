package storage

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/fixture-garden-go/internal/json"
	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/pkg/log"
	"github.com/lk2023060901/fixture-garden-go/pkg/metrics"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/retry"
)

const (
	backendEtcd = "etcd"

	// m2mSegment 为多对多数据在行键下的子路径片段。
	m2mSegment = "m2m"

	probeTimeout   = 3 * time.Second
	requestTimeout = 10 * time.Second

	// listConcurrency 限制 List 物化对象时并发的 etcd 读请求数。
	listConcurrency = 8
)

// EtcdStore 将行数据与多对多引用存放在 etcd 键空间中。
//
// 键布局：
//
//	<root>/<label>/<pkKey>                  行数据（JSON 编码的 pk + fields）
//	<root>/<label>/<pkKey>/m2m/<field>      多对多引用列表（JSON 数组）
type EtcdStore struct {
	client *clientv3.Client
	root   string
}

var _ Store = (*EtcdStore)(nil)

// NewEtcdStore 基于已有客户端创建存储，并以指数退避探测连通性。
// 探测耗尽后返回 ErrStoreUnavailable。
func NewEtcdStore(ctx context.Context, client *clientv3.Client, root string) (*EtcdStore, error) {
	probe := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		_, err := client.Get(probeCtx, path.Join(root, "probe"))
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(probe, policy); err != nil {
		return nil, merr.WrapErrStoreUnavailable(strings.Join(client.Endpoints(), ","), err)
	}

	log.Ctx(ctx).Info("etcd store ready",
		zap.Strings("endpoints", client.Endpoints()),
		zap.String("root", root))
	return &EtcdStore{client: client, root: root}, nil
}

func (es *EtcdStore) rowKey(label, key string) string {
	return path.Join(es.root, label, key)
}

func (es *EtcdStore) m2mKey(label, key, field string) string {
	return path.Join(es.root, label, key, m2mSegment, field)
}

func (es *EtcdStore) Save(ctx context.Context, m model.Model) error {
	metrics.StoreOps.WithLabelValues(backendEtcd, "save").Inc()

	schema, err := model.SchemaOf(m)
	if err != nil {
		return err
	}
	if schema.PKIsZero(m) {
		return merr.WrapErrPkMissing(schema.Label)
	}
	pk, fields, _, err := schema.Values(m)
	if err != nil {
		return err
	}
	data, err := json.Marshal(&row{PK: pk, Fields: fields})
	if err != nil {
		return merr.WrapErrRecordCorrupted(schema.Label, err)
	}

	key := es.rowKey(schema.Label, pkKey(pk))
	if err := es.put(ctx, key, string(data)); err != nil {
		metrics.StoreOpErrors.WithLabelValues(backendEtcd, "save").Inc()
		return merr.WrapErrStoreIoFailed(key, err)
	}
	return nil
}

func (es *EtcdStore) SaveM2M(ctx context.Context, label string, pk any, field string, refs []any) error {
	metrics.StoreOps.WithLabelValues(backendEtcd, "save_m2m").Inc()

	data, err := json.Marshal(refs)
	if err != nil {
		return merr.WrapErrRecordCorrupted(label, err)
	}
	key := es.m2mKey(label, pkKey(pk), field)
	if err := es.put(ctx, key, string(data)); err != nil {
		metrics.StoreOpErrors.WithLabelValues(backendEtcd, "save_m2m").Inc()
		return merr.WrapErrStoreIoFailed(key, err)
	}
	return nil
}

func (es *EtcdStore) Get(ctx context.Context, label string, pk any) (model.Model, error) {
	metrics.StoreOps.WithLabelValues(backendEtcd, "get").Inc()

	obj, err := materialize(ctx, label, pkKey(pk), es.fetchRow, es.fetchM2M)
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues(backendEtcd, "get").Inc()
		return nil, err
	}
	return obj, nil
}

func (es *EtcdStore) List(ctx context.Context, label string) ([]model.Model, error) {
	metrics.StoreOps.WithLabelValues(backendEtcd, "list").Inc()

	if _, err := model.Lookup(label); err != nil {
		return nil, err
	}

	prefix := path.Join(es.root, label) + "/"
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := es.client.Get(reqCtx, prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues(backendEtcd, "list").Inc()
		return nil, merr.WrapErrStoreIoFailed(prefix, err)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		suffix := strings.TrimPrefix(string(kv.Key), prefix)
		// 行键在前缀下无子路径，m2m 键带有 "/m2m/" 片段。
		if !strings.Contains(suffix, "/") {
			keys = append(keys, suffix)
		}
	}
	sort.Strings(keys)

	out := make([]model.Model, len(keys))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(listConcurrency)
	for i, key := range keys {
		eg.Go(func() error {
			obj, err := materialize(egCtx, label, key, es.fetchRow, es.fetchM2M)
			if err != nil {
				return err
			}
			out[i] = obj
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		metrics.StoreOpErrors.WithLabelValues(backendEtcd, "list").Inc()
		return nil, err
	}
	return out, nil
}

func (es *EtcdStore) Delete(ctx context.Context, label string, pk any) error {
	metrics.StoreOps.WithLabelValues(backendEtcd, "delete").Inc()

	key := es.rowKey(label, pkKey(pk))
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := es.client.Delete(reqCtx, key)
	if err != nil {
		metrics.StoreOpErrors.WithLabelValues(backendEtcd, "delete").Inc()
		return merr.WrapErrStoreIoFailed(key, err)
	}
	if resp.Deleted == 0 {
		return merr.WrapErrStoreKeyNotFound(key)
	}
	if _, err := es.client.Delete(reqCtx, key+"/", clientv3.WithPrefix()); err != nil {
		metrics.StoreOpErrors.WithLabelValues(backendEtcd, "delete").Inc()
		return merr.WrapErrStoreIoFailed(key, err)
	}
	return nil
}

func (es *EtcdStore) Close() error {
	return es.client.Close()
}

func (es *EtcdStore) put(ctx context.Context, key, value string) error {
	return retry.Do(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		_, err := es.client.Put(reqCtx, key, value)
		return err
	}, retry.Attempts(3))
}

func (es *EtcdStore) fetchRow(ctx context.Context, label, key string) (*row, error) {
	etcdKey := es.rowKey(label, key)
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := es.client.Get(reqCtx, etcdKey)
	if err != nil {
		return nil, merr.WrapErrStoreIoFailed(etcdKey, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, merr.WrapErrStoreKeyNotFound(etcdKey)
	}

	r := &row{}
	if err := json.Unmarshal(resp.Kvs[0].Value, r); err != nil {
		return nil, merr.WrapErrRecordCorrupted(label, err)
	}
	return r, nil
}

func (es *EtcdStore) fetchM2M(ctx context.Context, label, key string) (map[string][]any, error) {
	prefix := path.Join(es.root, label, key, m2mSegment) + "/"
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := es.client.Get(reqCtx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, merr.WrapErrStoreIoFailed(prefix, err)
	}

	out := make(map[string][]any, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		field := strings.TrimPrefix(string(kv.Key), prefix)
		var refs []any
		if err := json.Unmarshal(kv.Value, &refs); err != nil {
			return nil, merr.WrapErrRecordCorrupted(label, err)
		}
		out[field] = refs
	}
	return out, nil
}
