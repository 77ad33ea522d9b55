package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	Env = map[string]string{"PLAN_SOURCE": "upstream"}
	t.Cleanup(func() { Env = nil })
	t.Setenv("PLAN_SOURCE", "db")

	assert.Equal(t, "upstream", GetEnv("PLAN_SOURCE", "x"))
	assert.Equal(t, "fallback", GetEnv("DOES_NOT_EXIST_DD", "fallback"))
}

func TestGetDurationAndInt(t *testing.T) {
	Env = map[string]string{"A": "90s", "B": "nonsense", "C": "-1s", "N": "4", "M": "four"}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 90*time.Second, GetDuration("A", time.Hour))
	assert.Equal(t, time.Hour, GetDuration("B", time.Hour))
	assert.Equal(t, time.Hour, GetDuration("C", time.Hour))
	assert.Equal(t, time.Hour, GetDuration("MISSING", time.Hour))
	assert.Equal(t, 4, GetInt("N", 2))
	assert.Equal(t, 2, GetInt("M", 2))
}
