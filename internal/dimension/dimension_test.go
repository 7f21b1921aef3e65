package dimension

import (
	"testing"

	"github.com/catherinevee/vtagger/internal/dsl"
	"github.com/catherinevee/vtagger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func validRecord(name string, orderIndex int) dsl.Record {
	return dsl.Record{
		VtagName:     name,
		Index:        orderIndex,
		Kind:         "direct",
		DefaultValue: "Unallocated",
		Statements: []dsl.Statement{
			{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'Production'"},
		},
	}
}

func TestPut_RejectsInvalidRecordWithoutWriting(t *testing.T) {
	m, _ := openTestManager(t)

	errs, err := m.Put(dsl.Record{})
	require.NoError(t, err)
	assert.NotEmpty(t, errs)
	assert.Empty(t, m.Compiled())
}

func TestPut_ThenReloadPopulatesCompiledCache(t *testing.T) {
	m, _ := openTestManager(t)

	errs, err := m.Put(validRecord("Environment", 0))
	require.NoError(t, err)
	assert.Empty(t, errs)

	compiled := m.Compiled()
	require.Len(t, compiled, 1)
	assert.Equal(t, "Environment", compiled[0].Name)
}

func TestPut_OverwriteRecordsHistory(t *testing.T) {
	m, st := openTestManager(t)

	_, err := m.Put(validRecord("Environment", 0))
	require.NoError(t, err)

	rec := validRecord("Environment", 1)
	_, err = m.Put(rec)
	require.NoError(t, err)

	rows, err := st.Query(`SELECT COUNT(*) FROM dimension_history WHERE vtag_name = ?`, "Environment")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var count int
	require.NoError(t, rows.Scan(&count))
	assert.Equal(t, 2, count)
}

func TestDelete_RemovesFromCache(t *testing.T) {
	m, _ := openTestManager(t)

	_, err := m.Put(validRecord("Environment", 0))
	require.NoError(t, err)
	require.Len(t, m.Compiled(), 1)

	require.NoError(t, m.Delete("Environment"))
	assert.Empty(t, m.Compiled())
}

func TestTagKeysUsed_SortedUnionAcrossDimensions(t *testing.T) {
	m, _ := openTestManager(t)

	rec1 := validRecord("Environment", 0)
	rec1.Statements = []dsl.Statement{{MatchExpression: "TAG['zeta'] == 'z'", ValueExpression: "'Z'"}}
	rec2 := validRecord("Team", 1)
	rec2.Statements = []dsl.Statement{{MatchExpression: "TAG['alpha'] == 'a'", ValueExpression: "'A'"}}

	_, err := m.Put(rec1)
	require.NoError(t, err)
	_, err = m.Put(rec2)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "zeta"}, m.TagKeysUsed())
}

func TestChecksums_ReflectsStoredContent(t *testing.T) {
	m, _ := openTestManager(t)

	_, err := m.Put(validRecord("Environment", 0))
	require.NoError(t, err)

	sums, err := m.Checksums()
	require.NoError(t, err)
	require.Contains(t, sums, "Environment")
	assert.NotEmpty(t, sums["Environment"])
}
