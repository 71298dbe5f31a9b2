package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 測試 WithDefaults 補齊未設定的欄位
func TestPolicyWithDefaults(t *testing.T) {
	p := Policy{SendInterval: time.Second, RoomOrder: "unknown"}.WithDefaults()

	assert.Equal(t, time.Second, p.SendInterval)
	assert.Equal(t, 500, p.MaxContentLength)
	assert.Equal(t, 60*time.Second, p.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, p.OnlineWindow)
	assert.Equal(t, 20, p.PageSize)
	assert.Equal(t, 100, p.MaxPageSize)
	assert.Equal(t, RoomOrderCreated, p.RoomOrder)

	p = Policy{PageSize: 200}.WithDefaults()
	assert.Equal(t, 200, p.MaxPageSize)
}

// 測試 ReadConfig 讀取 yaml 並替換環境變數
func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	yaml := `port: "${TEST_CHAT_PORT}"
jwt_secret: "secret"
mongo:
  host: "mongo"
  port: 27017
redis:
  addr: "localhost:6379"
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic: "chat-events"
policy:
  send_interval: 500ms
  online_window: 2m
  room_order: activity
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_test.yaml"), []byte(yaml), 0o644))
	t.Setenv("TEST_CHAT_PORT", "9999")

	cfg, err := ReadConfig[Chat]("chat_test", dir)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "mongo", cfg.MongoSQL.Host)
	assert.Equal(t, 27017, cfg.MongoSQL.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 500*time.Millisecond, cfg.Policy.SendInterval)
	assert.Equal(t, 2*time.Minute, cfg.Policy.OnlineWindow)
	assert.Equal(t, RoomOrderActivity, cfg.Policy.RoomOrder)
}

// 測試找不到設定檔
func TestReadConfig_Missing(t *testing.T) {
	_, err := ReadConfig[Chat]("does_not_exist", t.TempDir())
	assert.Error(t, err)
}
