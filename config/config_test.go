package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CLOAK_DATA_SOURCE_DNS", "postgres://localhost:5432/cloak")
	t.Setenv("CLOAK_REDIS_DNS", "localhost:6379")
	t.Setenv("CLOAK_COMPUTE_SERVICE_URL", "http://compute:9090/submit")

	err := loadConfigFromFile("nonexistent.json")
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost:5432/cloak", cnf.DataSource.Dns)
	assert.Equal(t, "localhost:6379", cnf.Redis.Dns)
	assert.Equal(t, "http://compute:9090/submit", cnf.ComputeService.Url)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, uint16(DEFAULT_TREASURY_BPS), cnf.Fees.TreasuryBps)
	assert.Equal(t, uint16(DEFAULT_REFERRAL_BPS), cnf.Fees.ReferralBps)
	assert.Equal(t, "new:computation", cnf.Queue.ComputeQueue)
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `{
		"project_name": "cloak test",
		"data_source": {"dns": "postgres://db:5432/cloak"},
		"redis": {"dns": "redis:6379"},
		"fees": {"treasury_bps": 200, "referral_bps": 100, "treasury": "bln_treasury"}
	}`
	f, err := os.CreateTemp(t.TempDir(), "cloak*.json")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = loadConfigFromFile(f.Name())
	require.NoError(t, err)

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "cloak test", cnf.ProjectName)
	assert.Equal(t, uint16(200), cnf.Fees.TreasuryBps)
	assert.Equal(t, uint16(100), cnf.Fees.ReferralBps)
	assert.Equal(t, "bln_treasury", cnf.Fees.Treasury)
}

func TestValidateRejectsMissingDataSource(t *testing.T) {
	cnf := &Configuration{Redis: RedisConfig{Dns: "localhost:6379"}}
	err := cnf.validateAndAddDefaults()
	assert.Error(t, err)
}

func TestValidateRejectsExcessiveFeeRates(t *testing.T) {
	cnf := &Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://db:5432/cloak"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Fees:       FeesConfig{TreasuryBps: 9000, ReferralBps: 1001},
	}
	err := cnf.validateAndAddDefaults()
	assert.Error(t, err)
}
