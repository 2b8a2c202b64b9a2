package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSenderID(t *testing.T) {
	cases := map[string]string{
		"5511999999999":                    "5511999999999",
		"+55 11 99999-9999":                "5511999999999",
		"5511999999999@s.whatsapp.net":     "5511999999999",
		"5511999999999:12@s.whatsapp.net":  "5511999999999",
		"5511999999999.0:3@s.whatsapp.net": "5511999999999",
		"123456789@lid":                    "123456789@lid",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSenderID(in), in)
	}
}

func TestBurstText_KeepsOrderAndSkipsBlank(t *testing.T) {
	b := Burst{Messages: []BurstMessage{{Text: "M1"}, {Text: "  "}, {Text: "M2"}, {Text: "M3"}}}
	assert.Equal(t, "M1\nM2\nM3", b.Text())
}

func TestStatus_Gate(t *testing.T) {
	assert.True(t, StatusBot.AllowsAutoReply())
	for _, s := range []Status{StatusHuman, StatusAwaiting, StatusFinished} {
		assert.False(t, s.AllowsAutoReply())
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("paused").Valid())
}
