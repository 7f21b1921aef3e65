package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMatchExpression(t *testing.T) {
	atoms := ParseMatchExpression(`TAG['env'] == 'prod' || DIMENSION['D1'] CONTAINS 'infra'`)
	require.Len(t, atoms, 2)

	assert.Equal(t, SourceTag, atoms[0].Source)
	assert.Equal(t, "env", atoms[0].Key)
	assert.Equal(t, OpEquals, atoms[0].Op)
	assert.Equal(t, "prod", atoms[0].Literal)

	assert.Equal(t, SourceDimension, atoms[1].Source)
	assert.Equal(t, "D1", atoms[1].Key)
	assert.Equal(t, OpContains, atoms[1].Op)
	assert.Equal(t, "infra", atoms[1].Literal)
}

func TestParseMatchExpression_DropsUnparseableAtoms(t *testing.T) {
	atoms := ParseMatchExpression(`garbage || TAG['env'] == 'prod'`)
	require.Len(t, atoms, 1)
	assert.Equal(t, "env", atoms[0].Key)
}

func TestParseValueExpression(t *testing.T) {
	assert.Equal(t, "Production", ParseValueExpression(`'Production'`))
	assert.Equal(t, "", ParseValueExpression(`garbage`))
}

func TestValidate_MissingVtagName(t *testing.T) {
	errs := Validate(Record{Statements: []Statement{{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'Production'"}}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "vtagName")
}

func TestValidate_BadStatement(t *testing.T) {
	errs := Validate(Record{
		VtagName: "D1",
		Statements: []Statement{
			{MatchExpression: "", ValueExpression: "'x'"},
			{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: ""},
			{MatchExpression: "not a valid atom", ValueExpression: "'x'"},
		},
	})
	require.Len(t, errs, 3)
}

func TestValidate_Clean(t *testing.T) {
	errs := Validate(Record{
		VtagName:   "D1",
		Statements: []Statement{{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'Production'"}},
	})
	assert.Empty(t, errs)
}

func TestBuild_ExactMatchFirstWins(t *testing.T) {
	idx := Build([]Statement{
		{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'First'"},
		{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'Second'"},
	})
	result, ok := idx.LookupTagExact("env", "prod")
	require.True(t, ok)
	assert.Equal(t, "First", result)
}

func TestBuild_ContainsEntriesPreserveOrder(t *testing.T) {
	idx := Build([]Statement{
		{MatchExpression: "TAG['name'] CONTAINS 'prod'", ValueExpression: "'A'"},
		{MatchExpression: "TAG['name'] CONTAINS 'staging'", ValueExpression: "'B'"},
	})
	require.Len(t, idx.TagContains, 2)
	assert.Equal(t, "A", idx.TagContains[0].Result)
	assert.Equal(t, "B", idx.TagContains[1].Result)
}

func TestChecksum_DeterministicAcrossCalls(t *testing.T) {
	rec := Record{
		VtagName:     "D1",
		DefaultValue: "Unallocated",
		Statements:   []Statement{{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'Production'"}},
	}

	sum1, err := Checksum(rec)
	require.NoError(t, err)
	sum2, err := Checksum(rec)
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)
}
