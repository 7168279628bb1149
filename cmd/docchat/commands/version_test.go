package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd_Output(t *testing.T) {
	saved := versionInfo
	t.Cleanup(func() { versionInfo = saved })

	SetVersion("1.2.3", "abc123", "2026-01-31")
	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "docchat 1.2.3")
	assert.Contains(t, out.String(), "Commit: abc123")
	assert.Contains(t, out.String(), "2026-01-31")
}
