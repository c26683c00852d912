package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("BIDDING_TEST_ADDR", ":9090")
	t.Setenv("BIDDING_TEST_EMPTY", "")

	assert.Equal(t, ":9090", GetEnv("BIDDING_TEST_ADDR", ":8080"))
	assert.Equal(t, ":8080", GetEnv("BIDDING_TEST_EMPTY", ":8080"))
	assert.Equal(t, "x", GetEnv("BIDDING_TEST_UNSET", "x"))
}

func TestGetEnvTyped(t *testing.T) {
	t.Setenv("BIDDING_TEST_INT", "3")
	t.Setenv("BIDDING_TEST_BAD_INT", "three")
	t.Setenv("BIDDING_TEST_BAD_DUR", "soon")
	t.Setenv("BIDDING_TEST_DUR", "150ms")
	t.Setenv("BIDDING_TEST_LIST", " a, ,b ")

	assert.Equal(t, 3, GetEnvInt("BIDDING_TEST_INT", 0))
	assert.Equal(t, 7, GetEnvInt("BIDDING_TEST_BAD_INT", 7))
	assert.Equal(t, 150*time.Millisecond, GetEnvDuration("BIDDING_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("BIDDING_TEST_BAD_DUR", time.Second))
	assert.Equal(t, []string{"a", "b"}, GetEnvList("BIDDING_TEST_LIST", nil))
	assert.Equal(t, []string{"*"}, GetEnvList("BIDDING_TEST_UNSET_LIST", []string{"*"}))
}
