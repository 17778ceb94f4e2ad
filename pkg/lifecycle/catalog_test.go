package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/datalytyx/databricks-maintenance/pkg/cache"
	"github.com/datalytyx/databricks-maintenance/pkg/databricks"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in     string
		want   Version
		wantOK bool
	}{
		{"10.4 LTS (Scala 2.12)", Version{10, 4}, true},
		{"7.3.x-scala2.12", Version{7, 3}, true},
		{"13.3.x-cpu-ml-scala2.12", Version{13, 3}, true},
		{"9.1", Version{9, 1}, true},
		{"Custom image", Version{}, false},
		{"", Version{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseVersion(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildCatalog(t *testing.T) {
	catalog := BuildCatalog([]databricks.SparkVersion{
		{Key: "10.4.x-scala2.12", Name: "10.4 LTS (Scala 2.12)"},
		{Key: "custom", Name: "Custom image"},
		{Key: "9.1.x-scala2.12", Name: "9.1"},
		{Key: "7.3.x-scala2.12", Name: "7.3"},
	})

	require.Len(t, catalog, 3, "names without major.minor are dropped")
	var got []string
	for _, rt := range catalog {
		got = append(got, rt.Version.String())
	}
	assert.Equal(t, []string{"7.3", "9.1", "10.4"}, got, "sort must be numeric, not lexicographic")

	head := catalog[2]
	assert.Equal(t, "10.4.x-scala2.12", head.Key)
	assert.True(t, head.IsLTS())
	assert.False(t, head.IsML())
}

func TestCatalogFlavorsAreCaseSensitive(t *testing.T) {
	rt := RuntimeVersion{DisplayName: "12.2 LTS ML Photon Genomics"}
	assert.True(t, rt.IsLTS())
	assert.True(t, rt.IsML())
	assert.True(t, rt.IsPhoton())
	assert.True(t, rt.IsGenomics())

	lower := RuntimeVersion{DisplayName: "12.2 lts ml"}
	assert.False(t, lower.IsLTS())
	assert.False(t, lower.IsML())

	f := RuntimeFlavors("12.2.X-CPU-ML-scala2.12")
	assert.True(t, f.Has(FlavorML))
	assert.False(t, f.Has(FlavorPhoton))
}

func TestLTSRuntimesNewestFirst(t *testing.T) {
	catalog := BuildCatalog(offerings("7.3 LTS", "8.4", "9.1 LTS", "10.4 LTS", "11.0"))
	lts := LTSRuntimes(catalog)

	require.Len(t, lts, 3)
	assert.Equal(t, Version{10, 4}, lts[0].Version)
	assert.Equal(t, Version{9, 1}, lts[1].Version)
	assert.Equal(t, Version{7, 3}, lts[2].Version)
}

func TestListAvailableRuntimesIsCached(t *testing.T) {
	clk := testingclock.NewFakeClock(date(2025, 1, 10))
	store, err := cache.NewMemoryStore(8)
	require.NoError(t, err)
	c := cache.New(store, 60*time.Second, discardLogger(), cache.WithClock(clk))

	ws := &fakeWorkspace{versions: offerings("9.1 LTS", "10.4 LTS")}
	m := NewManager(ws, nil, c, discardLogger(), WithClock(clk))

	first, err := m.ListAvailableRuntimes(context.Background())
	require.NoError(t, err)
	second, err := m.ListAvailableRuntimes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ws.versionsCalls, "second call within TTL must be served from cache")
	assert.Equal(t, first, second)

	clk.Step(61 * time.Second)
	_, err = m.ListAvailableRuntimes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ws.versionsCalls, "call after TTL expiry must refetch")
}

func TestListAvailableRuntimesPropagatesAPIError(t *testing.T) {
	ws := &fakeWorkspace{versionsErr: errUpstream}
	m := NewManager(ws, nil, nil, discardLogger())

	_, err := m.ListAvailableRuntimes(context.Background())
	var apiErr *databricks.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)
}

func TestListLTSRuntimes(t *testing.T) {
	ws := &fakeWorkspace{versions: offerings("9.1 LTS", "12.0", "11.3 LTS")}
	m := NewManager(ws, nil, nil, discardLogger())

	lts, err := m.ListLTSRuntimes(context.Background())
	require.NoError(t, err)
	require.Len(t, lts, 2)
	assert.Equal(t, "11.3 LTS", lts[0].DisplayName)
}
