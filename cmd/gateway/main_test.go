package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutesCommand(t *testing.T) {
	t.Setenv("IAMGW_JWT__SECRET", "cli-test-secret")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"routes", "--config", filepath.Join(t.TempDir(), "none.yaml")})

	require.NoError(t, cmd.Execute())
	for _, id := range []string{"user-service-protected", "auth-service", "admin-routes", "/api/v1/users/health"} {
		assert.Contains(t, out.String(), id)
	}
}

func TestRoutesCommand_InvalidConfig(t *testing.T) {
	t.Setenv("IAMGW_JWT__SECRET", "")
	t.Setenv("IAMGW_RATE_LIMIT__BURST_CAPACITY", "0")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"routes", "--config", filepath.Join(t.TempDir(), "none.yaml")})
	assert.Error(t, cmd.Execute())
}
