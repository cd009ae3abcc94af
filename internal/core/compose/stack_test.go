package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const appStack = `
services:
  db:
    image: postgres:16
    healthcheck:
      test: ["CMD", "pg_isready"]
  cache:
    image: redis:7
  api:
    image: app/api:${APP_VERSION}
    depends_on:
      - db
      - cache
  web:
    image: app/web:${APP_VERSION}
    depends_on:
      - api
`

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_ValidStack(t *testing.T) {
	stack, err := Parse(appStack, "myproj")

	require.NoError(t, err)
	assert.Equal(t, "myproj", stack.Name)
	assert.Equal(t, []string{"api", "cache", "db", "web"}, stack.ServiceNames())

	db, ok := stack.Service("db")
	require.True(t, ok)
	assert.True(t, db.HasHealthCheck)
	assert.Equal(t, "postgres:16", db.Image)

	api, ok := stack.Service("api")
	require.True(t, ok)
	assert.False(t, api.HasHealthCheck)
	assert.Equal(t, []string{"cache", "db"}, api.DependsOn)
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse("", "proj")
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Parse("   \n\t\n", "proj")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse("services:\n  web:\n - broken [yaml", "proj")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParse_NoServices(t *testing.T) {
	_, err := Parse("volumes:\n  data:\n", "proj")
	assert.Error(t, err)
}

func TestParse_UnknownService(t *testing.T) {
	stack, err := Parse(appStack, "proj")
	require.NoError(t, err)

	_, ok := stack.Service("worker")
	assert.False(t, ok)
}

// =============================================================================
// Update Ordering Tests
// =============================================================================

func TestUpdateOrder_DependenciesFirst(t *testing.T) {
	stack, err := Parse(appStack, "proj")
	require.NoError(t, err)

	order := stack.UpdateOrder()

	require.Len(t, order, 4)
	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["db"], pos["api"])
	assert.Less(t, pos["cache"], pos["api"])
	assert.Less(t, pos["api"], pos["web"])
}

func TestUpdateOrder_Deterministic(t *testing.T) {
	stack, err := Parse(appStack, "proj")
	require.NoError(t, err)

	first := stack.UpdateOrder()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, stack.UpdateOrder())
	}
}

func TestUpdateOrder_NoDependencies(t *testing.T) {
	stack, err := Parse("services:\n  b:\n    image: x\n  a:\n    image: y\n", "proj")
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, stack.UpdateOrder())
}
