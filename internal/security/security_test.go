package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroBytes(t *testing.T) {
	data := []byte{0x41, 0x42, 0x43, 0x44}
	ZeroBytes(data)

	for i, b := range data {
		assert.Equal(t, byte(0), b, "byte at position %d should be zero", i)
	}
}

func TestZeroBytes_EmptySlice(t *testing.T) {
	var data []byte
	assert.NotPanics(t, func() {
		ZeroBytes(data)
	})
}

func TestSecureCopy(t *testing.T) {
	original := []byte{0x01, 0x02, 0x03, 0x04}
	copied := SecureCopy(original)

	assert.Equal(t, original, copied)
	assert.NotSame(t, &original[0], &copied[0])

	original[0] = 0xFF
	assert.NotEqual(t, original[0], copied[0])
}

func TestSecureCopy_Empty(t *testing.T) {
	assert.Nil(t, SecureCopy(nil))
}

func TestSecureRandomGenerator(t *testing.T) {
	srg := NewSecureRandomGenerator()

	t.Run("Generate", func(t *testing.T) {
		size := 32
		data, err := srg.Generate(size)
		require.NoError(t, err)
		assert.Len(t, data, size)

		data2, err := srg.Generate(size)
		require.NoError(t, err)
		assert.NotEqual(t, data, data2)
	})

	t.Run("Generate_InvalidSize", func(t *testing.T) {
		data, err := srg.Generate(0)
		assert.Error(t, err)
		assert.Nil(t, data)

		data, err = srg.Generate(-1)
		assert.Error(t, err)
		assert.Nil(t, data)
	})

	t.Run("GenerateKey", func(t *testing.T) {
		for _, size := range []int{16, 24, 32, 64} {
			key, err := srg.GenerateKey(size)
			require.NoError(t, err, "size: %d", size)
			assert.Len(t, key, size)
		}
	})

	t.Run("GenerateKey_InvalidSize", func(t *testing.T) {
		key, err := srg.GenerateKey(8)
		assert.Error(t, err)
		assert.Nil(t, key)
	})
}

func TestGenerateSecureRandom(t *testing.T) {
	data, err := GenerateSecureRandom(32)
	require.NoError(t, err)
	assert.Len(t, data, 32)

	data2, err := GenerateSecureRandom(32)
	require.NoError(t, err)
	assert.NotEqual(t, data, data2)
}

func TestGenerateSecureKey(t *testing.T) {
	key, err := GenerateSecureKey(32)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = GenerateSecureKey(4)
	assert.Error(t, err)
}

func TestSecurityAuditor(t *testing.T) {
	auditor := NewSecurityAuditor(100)

	t.Run("LogEvent", func(t *testing.T) {
		auditor.LogEvent(SecurityEvent{
			Type:    "test",
			Level:   SecurityLevelMedium,
			Message: "test event",
		})
		events := auditor.GetEvents()

		require.Len(t, events, 1)
		assert.Equal(t, "test", events[0].Type)
		assert.Equal(t, SecurityLevelMedium, events[0].Level)
		assert.Equal(t, "test event", events[0].Message)
		assert.False(t, events[0].Timestamp.IsZero())
		assert.NotEmpty(t, events[0].Source)
	})

	t.Run("MaxEvents", func(t *testing.T) {
		smallAuditor := NewSecurityAuditor(2)

		for i := 0; i < 3; i++ {
			smallAuditor.LogEvent(SecurityEvent{
				Type:    "overflow",
				Level:   SecurityLevelLow,
				Message: string(rune('1' + i)),
			})
		}

		events := smallAuditor.GetEvents()
		require.Len(t, events, 2)
		assert.Equal(t, "2", events[0].Message)
		assert.Equal(t, "3", events[1].Message)
	})
}

func TestLogSecurityEvent(t *testing.T) {
	before := len(RecentSecurityEvents())
	LogSecurityEvent("test.global", "recorded against the shared auditor", SecurityLevelLow)
	after := RecentSecurityEvents()

	require.Len(t, after, before+1)
	assert.Equal(t, "test.global", after[len(after)-1].Type)
}

func TestSecurityLevel_String(t *testing.T) {
	assert.Equal(t, "LOW", SecurityLevelLow.String())
	assert.Equal(t, "MEDIUM", SecurityLevelMedium.String())
	assert.Equal(t, "HIGH", SecurityLevelHigh.String())
	assert.Equal(t, "CRITICAL", SecurityLevelCritical.String())
}
