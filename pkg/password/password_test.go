package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testPolicy() *Policy {
	return NewPolicy(Bcrypt{Cost: bcrypt.MinCost}, SHA256Hex{})
}

func TestPolicy_HashUsesPreferred(t *testing.T) {
	p := testPolicy()

	hashed, err := p.Hash("sekret")
	require.NoError(t, err)

	assert.True(t, Bcrypt{}.Recognizes(hashed))
	assert.True(t, p.Verify("sekret", hashed))
	assert.False(t, p.Verify("wrong", hashed))
	assert.False(t, p.NeedsUpgrade(hashed))
}

func TestPolicy_LegacyHash(t *testing.T) {
	p := testPolicy()

	// sha256("sekret") as stored by the file based backend
	legacy, err := SHA256Hex{}.Hash("sekret")
	require.NoError(t, err)
	require.Len(t, legacy, 64)

	assert.True(t, p.Verify("sekret", legacy))
	assert.False(t, p.Verify("sekret2", legacy))
	assert.True(t, p.NeedsUpgrade(legacy))
}

func TestPolicy_UnknownHash(t *testing.T) {
	p := testPolicy()

	assert.False(t, p.Verify("sekret", "plaintext"))
	assert.False(t, p.NeedsUpgrade("plaintext"))
	assert.False(t, p.Verify("", ""))
}

func TestPolicy_EmptyPassword(t *testing.T) {
	_, err := testPolicy().Hash("")
	assert.Error(t, err)
}

func TestSHA256Hex_Recognizes(t *testing.T) {
	s := SHA256Hex{}
	assert.False(t, s.Recognizes("abc"))
	assert.False(t, s.Recognizes(strings.Repeat("z", 64)))
	hashed, _ := s.Hash("x")
	assert.True(t, s.Recognizes(hashed))
}
