package mail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_BackendSelection(t *testing.T) {
	t.Run("resend key wins", func(t *testing.T) {
		m := New(Settings{
			From:         "no-reply@example.com",
			ResendAPIKey: "re_test_key",
			SMTPHost:     "smtp.example.com",
		})
		assert.IsType(t, &ResendMailer{}, m)
	})

	t.Run("smtp host without key", func(t *testing.T) {
		m := New(Settings{
			From:     "no-reply@example.com",
			SMTPHost: "smtp.example.com",
			SMTPPort: 587,
		})
		assert.IsType(t, &SMTPMailer{}, m)
	})

	t.Run("nothing configured falls back to log", func(t *testing.T) {
		m := New(Settings{From: "no-reply@example.com"})
		assert.IsType(t, LogMailer{}, m)
	})
}

func TestMaskAddress(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "al***@example.com",
		"ab@example.com":    "****@example.com",
		"a@example.com":     "****@example.com",
		"@example.com":      "****",
		"not-an-email":      "****",
		"":                  "****",
	}
	for input, want := range cases {
		assert.Equal(t, want, MaskAddress(input), "input %q", input)
	}
}
