package tracefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmoke(t *testing.T) {
	tl, err := Load(`.`)
	require.NoError(t, err)
	if len(tl) != len(Names) {
		t.Fatalf(`exp %v trace files; got %v`, len(Names), len(tl))
	}
	assert.Equal(t, `TraceList(small.epic, hspice.epic, malformed.epic)`, tl.String())
	assert.Equal(t, `TraceList()`, TraceList(nil).String())

	small := tl.Get(`small.epic`)
	require.NotNil(t, small)
	assert.Equal(t, small.Size, len(small.Data))
	assert.Nil(t, tl.Get(`missing.epic`))

	b := small.Bytes()
	b[0] = 'X'
	assert.NotEqual(t, b[0], small.Data[0], `Bytes should copy`)

	if exp := len(Names); len(tl.ByMaxSize(1024*32)) != exp {
		t.Fatalf(`expected %v trace files for ByMaxSize(32k)`, exp)
	}
	assert.Empty(t, tl.ByMaxSize(1))

	_, err = Load(`missing`)
	assert.Error(t, err)
}
