package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPSenderValidation(t *testing.T) {
	_, err := NewSMTPSender("", "587", "", "")
	require.Error(t, err)

	_, err = NewSMTPSender("smtp.example.com", "", "", "")
	require.Error(t, err)

	s, err := NewSMTPSender("smtp.example.com", "587", "user", "pass")
	require.NoError(t, err)
	assert.NotNil(t, s)
}
