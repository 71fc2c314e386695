package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_CompressesRepetitivePayloads(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	type row struct {
		Shop   string `json:"shop"`
		Amount string `json:"amount"`
	}
	rows := make([]row, 500)
	for i := range rows {
		rows[i] = row{Shop: "Ganesh Kirana", Amount: "150.00"}
	}

	data, err := c.Marshal(rows)
	require.NoError(t, err)

	var plain bytes.Buffer
	plain.WriteString(`[{"shop":"Ganesh Kirana","amount":"150.00"}`)
	assert.Less(t, len(data), plain.Len()*500/4)

	var back []row
	require.NoError(t, c.Unmarshal(data, &back))
	assert.Equal(t, rows, back)
}

func TestCodec_RejectsGarbage(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	defer c.Close()

	var v map[string]any
	assert.Error(t, c.Unmarshal([]byte("not zstd"), &v))
}
