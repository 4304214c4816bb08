package resulthash

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_Deterministic(t *testing.T) {
	value := map[string]interface{}{"x": 1, "y": "result"}

	first, err := Token(value)
	require.NoError(t, err)
	second, err := Token(value)
	require.NoError(t, err)

	assert.Equal(t, first, second, "Hashing the same value twice should yield the same token")
	assert.True(t, strings.HasPrefix(first, "0x"))
	assert.Len(t, first, 66, "0x prefix plus 32 bytes of hex")
}

func TestToken_FieldOrderIndependent(t *testing.T) {
	a := json.RawMessage(`{"alpha":1,"beta":"two","gamma":[1,2,3]}`)
	b := json.RawMessage(`{"gamma":[1,2,3],"alpha":1,"beta":"two"}`)

	tokenA, err := Token(a)
	require.NoError(t, err)
	tokenB, err := Token(b)
	require.NoError(t, err)

	assert.Equal(t, tokenA, tokenB, "Logically equal payloads should hash identically regardless of field order")
}

func TestToken_DifferentValuesDiffer(t *testing.T) {
	tokenA, err := Token(map[string]interface{}{"x": 1})
	require.NoError(t, err)
	tokenB, err := Token(map[string]interface{}{"x": 2})
	require.NoError(t, err)

	assert.NotEqual(t, tokenA, tokenB)
}

func TestToken_RawMessageMatchesDecodedValue(t *testing.T) {
	raw := json.RawMessage(`{"x":1}`)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	tokenRaw, err := Token(raw)
	require.NoError(t, err)
	tokenDecoded, err := Token(decoded)
	require.NoError(t, err)

	assert.Equal(t, tokenRaw, tokenDecoded)
}

func TestToken_Unhashable(t *testing.T) {
	_, err := Token(json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestMatches_ExactOnly(t *testing.T) {
	token, err := Token(map[string]interface{}{"x": 1})
	require.NoError(t, err)

	assert.True(t, Matches(token, token))
	assert.False(t, Matches(token, strings.ToUpper(token)), "Comparison is byte-for-byte, no case folding")
	assert.False(t, Matches(token, ""))
}
