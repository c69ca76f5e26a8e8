package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMasterVersion(t *testing.T) {
	cases := []struct {
		raw  string
		want masterVersion
	}{
		{"5.7.20", masterVersion{5, 7, 20}},
		{"5.7.20-log", masterVersion{5, 7, 20}},
		{"8.0.34-0ubuntu0.22.04.1", masterVersion{8, 0, 34}},
		{"5.1.23", masterVersion{5, 1, 23}},
	}
	for _, c := range cases {
		got, err := parseMasterVersion(c.raw)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestParseMasterVersionRejectsGarbage(t *testing.T) {
	_, err := parseMasterVersion("not-a-version")
	assert.Error(t, err)
}

func TestMasterVersionLess(t *testing.T) {
	assert.True(t, masterVersion{5, 1, 22}.less(minMasterVersion))
	assert.False(t, masterVersion{5, 1, 23}.less(minMasterVersion))
	assert.True(t, masterVersion{5, 6, 3}.less(oldStorageCeiling))
	assert.False(t, masterVersion{5, 6, 4}.less(oldStorageCeiling))
	assert.False(t, masterVersion{5, 7, 0}.less(oldStorageCeiling))
}

func TestIsOldStorageDerivedFromVersion(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"5.5.40", true},
		{"5.6.3", true},
		{"5.6.4", false},
		{"5.7.20", false},
		{"8.0.34", false},
	}
	for _, c := range cases {
		v, err := parseMasterVersion(c.raw)
		require.NoError(t, err)
		assert.Equal(t, c.want, v.less(oldStorageCeiling), "version %s", c.raw)
	}
}
