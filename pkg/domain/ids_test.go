package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTenantID(t *testing.T) {
	t.Run("round trips a valid uuid", func(t *testing.T) {
		want := NewTenantID()
		got, err := ParseTenantID(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := ParseTenantID("")
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := ParseTenantID("not-a-uuid")
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("rejects the nil uuid", func(t *testing.T) {
		_, err := ParseTenantID(uuid.Nil.String())
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestIDTypesAreDistinct(t *testing.T) {
	// The typed wrappers only earn their keep if conversions stay explicit;
	// equality across types must not compile, so compare the string forms.
	u := uuid.New()
	tenant := TenantID(u)
	client := ClientID(u)
	assert.Equal(t, tenant.String(), client.String())
}

func TestIsNil(t *testing.T) {
	assert.True(t, TenantID{}.IsNil())
	assert.False(t, NewTenantID().IsNil())
	assert.True(t, NotificationID{}.IsNil())
	assert.False(t, NewDocumentID().IsNil())
}
