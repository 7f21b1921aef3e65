package resolve

import (
	"testing"

	"github.com/catherinevee/vtagger/internal/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dimFromStatements(name string, orderIndex int, defaultValue string, stmts ...dsl.Statement) *Dimension {
	return NewDimension(dsl.Record{
		VtagName:     name,
		Index:        orderIndex,
		DefaultValue: defaultValue,
		Statements:   stmts,
	})
}

// Scenario A: a TAG exact match must win even when a DIMENSION contains
// rule would also match.
func TestResolve_TagExactWinsOverDimContains(t *testing.T) {
	d := dimFromStatements("Environment", 0, DefaultValue,
		dsl.Statement{MatchExpression: "DIMENSION['CostCenter'] CONTAINS 'infra'", ValueExpression: "'Infra'"},
		dsl.Statement{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'Production'"},
	)

	tagCtx := NewContext()
	tagCtx.Set("env", "prod")
	dimCtx := NewContext()
	dimCtx.Set("CostCenter", "infra-team")

	result := Resolve(d, tagCtx, dimCtx)
	assert.Equal(t, "Production", result)
}

// Scenario B: chained evaluation lets a later dimension read an earlier
// dimension's resolved value out of the dimension context.
func TestResolve_ChainedEvaluationSeesEarlierDimension(t *testing.T) {
	env := dimFromStatements("Environment", 0, DefaultValue,
		dsl.Statement{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'Production'"},
	)
	team := dimFromStatements("Team", 1, DefaultValue,
		dsl.Statement{MatchExpression: "DIMENSION['Environment'] == 'production'", ValueExpression: "'Platform'"},
	)

	tagCtx := NewContext()
	tagCtx.Set("env", "prod")
	dimCtx := NewContext()

	envResult := Resolve(env, tagCtx, dimCtx)
	dimCtx.Set(env.Name, envResult)

	teamResult := Resolve(team, tagCtx, dimCtx)
	assert.Equal(t, "Production", envResult)
	assert.Equal(t, "Platform", teamResult)
}

func TestResolve_NoMatchReturnsDefault(t *testing.T) {
	d := dimFromStatements("Environment", 0, DefaultValue,
		dsl.Statement{MatchExpression: "TAG['env'] == 'prod'", ValueExpression: "'Production'"},
	)

	tagCtx := NewContext()
	tagCtx.Set("env", "dev")
	dimCtx := NewContext()

	assert.Equal(t, DefaultValue, Resolve(d, tagCtx, dimCtx))
}

// Boundary: a dimension with zero statements always returns its default.
func TestResolve_ZeroStatementsAlwaysDefault(t *testing.T) {
	d := dimFromStatements("Empty", 0, "Unallocated")

	tagCtx := NewContext()
	tagCtx.Set("env", "prod")
	dimCtx := NewContext()

	assert.Equal(t, "Unallocated", Resolve(d, tagCtx, dimCtx))
}

func TestResolve_ContainsIsCaseInsensitive(t *testing.T) {
	d := dimFromStatements("Name", 0, DefaultValue,
		dsl.Statement{MatchExpression: "TAG['Name'] CONTAINS 'prod'", ValueExpression: "'Production'"},
	)

	tagCtx := NewContext()
	tagCtx.Set("Name", "MyPRODService")
	dimCtx := NewContext()

	assert.Equal(t, "Production", Resolve(d, tagCtx, dimCtx))
}

func TestResolve_EmptyTagValueSkipped(t *testing.T) {
	d := dimFromStatements("Environment", 0, DefaultValue,
		dsl.Statement{MatchExpression: "TAG['env'] == ''", ValueExpression: "'ShouldNeverMatch'"},
	)

	tagCtx := NewContext()
	tagCtx.Set("env", "")
	dimCtx := NewContext()

	assert.Equal(t, DefaultValue, Resolve(d, tagCtx, dimCtx))
}

func TestContext_PairsPreserveInsertionOrder(t *testing.T) {
	c := NewContext()
	c.Set("b", "2")
	c.Set("a", "1")
	c.Set("b", "22")

	pairs := c.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, "b", pairs[0].Key)
	assert.Equal(t, "22", pairs[0].Value)
	assert.Equal(t, "a", pairs[1].Key)
}

func TestContext_FillIfEmptyDoesNotOverwrite(t *testing.T) {
	c := NewContext()
	c.fillIfEmpty("env", "prod")
	c.fillIfEmpty("env", "staging")

	v, ok := c.Get("env")
	require.True(t, ok)
	assert.Equal(t, "prod", v)
}

func TestContext_FillIfEmptyIgnoresSentinelAndEmpty(t *testing.T) {
	c := NewContext()
	c.fillIfEmpty("env", "no tag")
	_, ok := c.Get("env")
	assert.False(t, ok)

	c.fillIfEmpty("env", "")
	_, ok = c.Get("env")
	assert.False(t, ok)
}
