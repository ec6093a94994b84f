package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/compliancetracker/compliancetracker/addone/agentsvc/platforms/wazuh"
	"github.com/compliancetracker/compliancetracker/internal/config"
	"github.com/compliancetracker/compliancetracker/internal/model"
)

const scaBody = `{"data":{"items":[{"policy_id":"cis","name":"CIS Benchmark","total_checks":3,"pass":2,"fail":1}],"total_affected_items":1},"error":0}`
const packagesBody = `{"data":{"items":[{"name":"openssl","version":"3.0.2"}],"total_affected_items":1},"error":0}`

type fakeWazuh struct {
	*httptest.Server
	hits atomic.Int32
}

func newFakeWazuh(t *testing.T, sca string) *fakeWazuh {
	t.Helper()
	f := &fakeWazuh{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sca/001/", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if user, pw, ok := r.BasicAuth(); !ok || user != "api" || pw != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(sca))
	})
	mux.HandleFunc("/syscollector/001/packages", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		_, _ = w.Write([]byte(packagesBody))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

type complianceFixture struct {
	itsystems *ITSystemsService
	host      *model.HostInstance
}

func newComplianceFixture(t *testing.T) *complianceFixture {
	t.Helper()
	ctx := context.Background()
	its := NewITSystemsService(openTestDB(t), nil)
	sys := &model.SystemInstance{Name: "CRM"}
	require.NoError(t, its.CreateSystem(ctx, sys))
	host := &model.HostInstance{Name: "web-1", SystemInstanceID: sys.ID}
	require.NoError(t, its.CreateHost(ctx, host))
	return &complianceFixture{itsystems: its, host: host}
}

func agentServiceConfig() config.AgentServiceConfig {
	return config.AgentServiceConfig{DefaultName: "Wazuh", Timeout: 5 * time.Second, CacheTTL: time.Minute}
}

func TestHostComplianceWithoutAgent(t *testing.T) {
	cf := newComplianceFixture(t)
	svc := NewComplianceService(cf.itsystems, agentServiceConfig(), nil)

	report, err := svc.HostCompliance(context.Background(), cf.host.ID)
	require.NoError(t, err)
	assert.False(t, report.Available)
	assert.Nil(t, report.Agent)
	assert.Equal(t, "Agent Service not defined or not supported.", report.DataPretty)
	assert.Equal(t, "web-1", report.HostInstance.Name)

	_, err = svc.HostCompliance(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHostComplianceUnsupportedProvider(t *testing.T) {
	cf := newComplianceFixture(t)
	ctx := context.Background()
	other := &model.AgentService{Name: "Other", Provider: "ossec"}
	require.NoError(t, cf.itsystems.CreateAgentService(ctx, other))
	require.NoError(t, cf.itsystems.CreateAgent(ctx, &model.Agent{AgentID: "001", HostInstanceID: cf.host.ID, AgentServiceID: &other.ID}))

	svc := NewComplianceService(cf.itsystems, agentServiceConfig(), nil)
	report, err := svc.HostCompliance(ctx, cf.host.ID)
	require.NoError(t, err)
	assert.False(t, report.Available)
	assert.Equal(t, ErrAgentServiceUndefined.Error(), report.DataPretty)
}

func TestHostComplianceFallsBackToDefaultService(t *testing.T) {
	cf := newComplianceFixture(t)
	ctx := context.Background()
	upstream := newFakeWazuh(t, scaBody)

	require.NoError(t, cf.itsystems.CreateAgentService(ctx, &model.AgentService{
		Name: "Wazuh", APIRootPath: upstream.URL + "/", APIUser: "api", APIPw: "secret",
	}))
	require.NoError(t, cf.itsystems.CreateAgent(ctx, &model.Agent{AgentID: "001", HostInstanceID: cf.host.ID}))

	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Snapshot.Backend = "local"
	cfg.Snapshot.Local.BaseDir = dir
	cfg.Snapshot.Local.MkdirIfMissing = true

	svc := NewComplianceService(cf.itsystems, agentServiceConfig(), NewSnapshotWriter(cfg))
	report, err := svc.HostCompliance(ctx, cf.host.ID)
	require.NoError(t, err)

	assert.True(t, report.Available)
	assert.Equal(t, "Wazuh", report.AgentService)
	assert.Equal(t, "CIS Benchmark", report.PolicyName)
	assert.Equal(t, 3, report.ChecksTotal)
	assert.Equal(t, 2, report.ChecksPass)
	assert.Equal(t, 1, report.ChecksFail)
	assert.Equal(t, 66.7, report.ChecksPassPercent)
	assert.Equal(t, 33.3, report.ChecksFailPercent)
	assert.Contains(t, report.DataPretty, "\n    \"data\": {")
	assert.Contains(t, report.PackagesPretty, `"name": "openssl"`)
	assert.Len(t, report.Snapshots, 2)
	assert.EqualValues(t, 2, upstream.hits.Load())

	_, err = svc.HostCompliance(ctx, cf.host.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, upstream.hits.Load(), "second request is served from cache")

	svc.InvalidateCache()
	_, err = svc.HostCompliance(ctx, cf.host.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, upstream.hits.Load())
}

func TestHostComplianceEmptySCA(t *testing.T) {
	cf := newComplianceFixture(t)
	ctx := context.Background()
	upstream := newFakeWazuh(t, `{"data":{"items":[]},"error":0}`)

	wz := &model.AgentService{Name: "Prod", APIRootPath: upstream.URL, APIUser: "api", APIPw: "secret"}
	require.NoError(t, cf.itsystems.CreateAgentService(ctx, wz))
	require.NoError(t, cf.itsystems.CreateAgent(ctx, &model.Agent{AgentID: "001", HostInstanceID: cf.host.ID, AgentServiceID: &wz.ID}))

	cfg := agentServiceConfig()
	cfg.CacheTTL = 0
	svc := NewComplianceService(cf.itsystems, cfg, nil)
	report, err := svc.HostCompliance(ctx, cf.host.ID)
	require.NoError(t, err)
	assert.True(t, report.Available)
	assert.Zero(t, report.ChecksTotal)
	assert.Zero(t, report.ChecksPassPercent)
}

func TestHostComplianceUpstreamError(t *testing.T) {
	cf := newComplianceFixture(t)
	ctx := context.Background()
	upstream := newFakeWazuh(t, scaBody)

	wz := &model.AgentService{Name: "Wazuh", APIRootPath: upstream.URL, APIUser: "api", APIPw: "wrong"}
	require.NoError(t, cf.itsystems.CreateAgentService(ctx, wz))
	require.NoError(t, cf.itsystems.CreateAgent(ctx, &model.Agent{AgentID: "001", HostInstanceID: cf.host.ID, AgentServiceID: &wz.ID}))

	svc := NewComplianceService(cf.itsystems, agentServiceConfig(), nil)
	_, err := svc.HostCompliance(ctx, cf.host.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
