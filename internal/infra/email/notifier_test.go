package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFailureMessage(t *testing.T) {
	msg := string(buildFailureMessage("noreply@fiapx.local", "user@example.com", "42", "clip.mp4", "invalid media"))

	assert.True(t, strings.HasPrefix(msg, "From: noreply@fiapx.local\r\nTo: user@example.com\r\n"))
	assert.Contains(t, msg, "Subject: FIAP X - Media Analysis Failed [Analysis 42]\r\n\r\n")
	assert.Contains(t, msg, "File: clip.mp4\r\n")
	assert.Contains(t, msg, "Error: invalid media\r\n")
}
