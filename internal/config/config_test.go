package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("", envMap(nil))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateWorker())

	assert.Equal(t, BackendDynamoDB, cfg.Backend)
	assert.Equal(t, "orders", cfg.Tables.Orders)
	assert.Equal(t, 40, cfg.Cart.MaxLines)
	assert.Equal(t, cfg.Service, cfg.Telemetry.ServiceName)
	assert.False(t, cfg.Pricing.ShareComboUnits)
	assert.Contains(t, cfg.Worker.LocalBody, `"event_id":"local-order-1"`)
}

func TestLoadFrom_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: mysql
tables:
  orders: orders-from-file
mysql:
  host: db.internal
  database: shop
lock:
  provider: redis
  wait: 2s
redis:
  url: redis://localhost:6379/0
pricing:
  share_combo_units: true
`), 0o600))

	cfg, err := LoadFrom(path, envMap(map[string]string{
		"ORDERS_TABLE":   "orders-from-env",
		"CART_MAX_LINES": "12",
		"RUN_LOCAL":      "true",
		"LOCAL_SQS_BODY": `{"event_id":"e9"}`,
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendMySQL, cfg.Backend)
	assert.Equal(t, "orders-from-env", cfg.Tables.Orders)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, 2*time.Second, cfg.Lock.Wait)
	assert.Equal(t, 12, cfg.Cart.MaxLines)
	assert.True(t, cfg.HTTP.RunLocal)
	assert.True(t, cfg.Pricing.ShareComboUnits)
	assert.Equal(t, `{"event_id":"e9"}`, cfg.Worker.LocalBody)
	assert.Contains(t, cfg.MySQL.DSN(), "@tcp(db.internal:3306)/shop?")
}

func TestLoadFrom_BadValues(t *testing.T) {
	_, err := LoadFrom("", envMap(map[string]string{"LOCK_WAIT": "soon", "RUN_LOCAL": "perhaps"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_WAIT")
	assert.Contains(t, err.Error(), "RUN_LOCAL")

	_, err = LoadFrom(filepath.Join(t.TempDir(), "config.json"), envMap(nil))
	assert.ErrorContains(t, err, "unsupported config file extension")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Backend = "cassandra"
	cfg.Lock.Provider = LockRedis
	cfg.Cart.MaxLines = 41
	cfg.Telemetry.Exporter = ExporterOTLP

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown backend", "redis.url", "cart.max_lines", "telemetry.endpoint"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = Default()
	cfg.Worker.Lease = 0
	assert.ErrorContains(t, cfg.ValidateWorker(), "worker.lease")
}
