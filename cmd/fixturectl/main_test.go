package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.json")
	out := filepath.Join(dir, "out.yaml")
	require.NoError(t, os.WriteFile(in, []byte(`[{"model":"app.tag","pk":1,"fields":{"name":"go"}}]`), 0o644))

	require.NoError(t, runConvert([]string{"-from", "json", "-to", "yaml", "-i", in, "-o", out}))

	// 成功返回意味着输出文件已关闭且落盘。
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "app.tag")
}

func TestConvertRequiresFormats(t *testing.T) {
	assert.Error(t, runConvert(nil))
}

func TestDumpWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.json")
	require.NoError(t, runDump([]string{"-o", out}))

	// 本测试进程未注册模型，导出为空集合。
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(data)))
}

func TestOpenOutputStdout(t *testing.T) {
	w, err := openOutput("")
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
