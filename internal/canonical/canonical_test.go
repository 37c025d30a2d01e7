package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	out, err := Marshal(map[string]interface{}{
		"text":  "hello",
		"media": []interface{}{"b.png", "a.png"},
		"meta":  map[string]interface{}{"z": 1.0, "a": true},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"media":["b.png","a.png"],"meta":{"a":true,"z":1},"text":"hello"}`, string(out))
}

func TestMarshalStructsAndTypedValues(t *testing.T) {
	type report struct {
		Zed   int      `json:"zed"`
		Alpha []string `json:"alpha"`
	}
	out, err := Marshal(report{Zed: 3, Alpha: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":["x"],"zed":3}`, string(out))
}

func TestDigestStableAcrossKeyOrder(t *testing.T) {
	a, err := Digest(map[string]interface{}{"a": "1", "b": "2"})
	require.NoError(t, err)
	b, err := Digest(map[string]interface{}{"b": "2", "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Digest(map[string]interface{}{"a": "1", "b": "3"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMarshalKeepsMarkupAndNumberText(t *testing.T) {
	out, err := Marshal(map[string]interface{}{
		"link":  "https://example.com/?a=1&b=<2>",
		"count": 12345678901234567,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"count":12345678901234567,"link":"https://example.com/?a=1&b=<2>"}`, string(out))
}

func TestMarshalRejectsUnencodable(t *testing.T) {
	_, err := Marshal(map[string]interface{}{"ch": make(chan int)})
	assert.Error(t, err)
}
