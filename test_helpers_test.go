package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gofiber/fiber/v3"
)

var repoRoot string

func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("无法定位项目根目录")
	}
	return repoRoot
}

func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "internal", "config", "testdata", name)
}

// isolateEnv 清空服务读取的环境变量，只保留测试显式设置的值。
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_ORGANIZATION",
		"LOG_LEVEL", "LOG_FILE", "LLMHUB_CONFIG",
	} {
		t.Setenv(key, "")
	}
}

// stubListen 替换 listenApp，记录端口与 app，不真正绑定 socket。
type listenRecord struct {
	called bool
	port   int
	app    *fiber.App
}

func stubListen(t *testing.T) *listenRecord {
	t.Helper()
	rec := &listenRecord{}
	prev := listenApp
	listenApp = func(app *fiber.App, port int) error {
		rec.called = true
		rec.port = port
		rec.app = app
		return nil
	}
	t.Cleanup(func() { listenApp = prev })
	return rec
}

// useBufferWriters 将 stdOut/stdErr 替换为内存 buffer，便于断言 CLI 输出。
func useBufferWriters(t *testing.T) {
	t.Helper()
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = &bytes.Buffer{}, &bytes.Buffer{}
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
}

func stdOutBuffer() *bytes.Buffer {
	buf, _ := stdOut.(*bytes.Buffer)
	return buf
}

func stdErrBuffer() *bytes.Buffer {
	buf, _ := stdErr.(*bytes.Buffer)
	return buf
}
