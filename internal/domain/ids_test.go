package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDList_Add(t *testing.T) {
	base := IDList{1, 2}
	got, changed := base.Add(3)
	assert.True(t, changed)
	assert.Equal(t, IDList{1, 2, 3}, got)
	assert.Equal(t, IDList{1, 2}, base)

	got, changed = got.Add(2)
	assert.False(t, changed)
	assert.Equal(t, IDList{1, 2, 3}, got)
}

func TestIDList_Covers(t *testing.T) {
	assert.True(t, IDList{3, 1, 2}.Covers(IDList{1, 2, 3}))
	assert.False(t, IDList{1, 2}.Covers(IDList{1, 2, 3}))
	assert.False(t, IDList{1}.Covers(nil))
	assert.Equal(t, IDList{3}, IDList{1, 2}.Missing(IDList{1, 2, 3}))
}

func TestIDList_Unique(t *testing.T) {
	assert.Equal(t, IDList{5, 1, 3}, IDList{5, 0, 1, 5, -2, 3, 1}.Unique())
	assert.Equal(t, []int64{}, IDList(nil).Int64s())
}
