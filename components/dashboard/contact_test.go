package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactMessageValidate(t *testing.T) {
	valid := ContactMessage{Name: " Ana ", Email: "ana@example.com", Subject: "Hi", Message: "Numbers look off"}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, "Ana", valid.Normalized().Name)

	err := ContactMessage{Email: "ana@example.com", Message: "  "}.Validate()
	assert.ErrorIs(t, err, ErrInvalidContact)
	assert.Contains(t, err.Error(), "name, subject, message")

	bad := valid
	bad.Email = "not an address"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidContact)
}
