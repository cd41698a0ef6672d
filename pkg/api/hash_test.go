package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v int64) *int64 { return &v }

func TestState_Fingerprint(t *testing.T) {
	base := State{
		ConnectionID: "conn-1",
		MessageID:    ptr(5),
		Groups:       []string{"a", "b"},
	}

	t.Run("identical states produce identical hashes", func(t *testing.T) {
		s1 := base
		s2 := base
		assert.Equal(t, s1.Fingerprint(), s2.Fingerprint())
	})

	t.Run("group order matters", func(t *testing.T) {
		s := base
		s.Groups = []string{"b", "a"}
		assert.NotEqual(t, base.Fingerprint(), s.Fingerprint())
	})

	t.Run("unset cursor differs from zero", func(t *testing.T) {
		unset := base
		unset.MessageID = nil
		zero := base
		zero.MessageID = ptr(0)
		assert.NotEqual(t, unset.Fingerprint(), zero.Fingerprint())
	})

	t.Run("group boundaries are delimited", func(t *testing.T) {
		s1 := base
		s1.Groups = []string{"ab"}
		s2 := base
		s2.Groups = []string{"a", "b"}
		assert.NotEqual(t, s1.Fingerprint(), s2.Fingerprint())
	})
}

func TestState_Cursor(t *testing.T) {
	_, ok := State{}.Cursor()
	assert.False(t, ok)

	id, ok := State{MessageID: ptr(42)}.Cursor()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.Contains(a, "-"))
}
