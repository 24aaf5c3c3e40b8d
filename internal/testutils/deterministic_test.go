package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type modeStub bool

func (m modeStub) IsTestMode() bool { return bool(m) }

func TestGenerateUUID_TestMode(t *testing.T) {
	ResetTestCounters()

	first := GenerateUUID(modeStub(true))
	second := GenerateUUID(modeStub(true))

	assert.Equal(t, "00000001-0000-4000-8000-000000000001", first)
	assert.Equal(t, "00000002-0000-4000-8000-000000000002", second)
	assert.True(t, IsValidUUID(first))
}

func TestGenerateUUID_Production(t *testing.T) {
	a := GenerateUUID(modeStub(false))
	b := GenerateUUID(nil)

	assert.True(t, IsValidUUID(a))
	assert.True(t, IsValidUUID(b))
	assert.NotEqual(t, a, b)
}

func TestGetCurrentTime_TestModeIncrements(t *testing.T) {
	ResetTestCounters()

	t1 := GetCurrentTime(modeStub(true))
	t2 := GetCurrentTime(modeStub(true))

	assert.Equal(t, 2025, t1.Year())
	assert.True(t, t2.After(t1))
	assert.Equal(t, 1, int(t2.Sub(t1).Seconds()))
}

func TestIsValidUUID(t *testing.T) {
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("not-a-uuid"))
	assert.True(t, IsValidUUID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
}
