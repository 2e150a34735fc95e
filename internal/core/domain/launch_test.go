package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestNewLaunchSpec(t *testing.T) {
	cfg := domain.DefaultBuildConfig()
	cfg.AppVersion = "v1.4.2"
	cfg.Server.Args = []string{"--proxy-headers"}

	spec, err := domain.NewLaunchSpec(cfg, []string{"LANG=C.UTF-8", "PATH=/usr/bin:/bin"})
	require.NoError(t, err)

	assert.Equal(t, "1000:1000", spec.User)
	assert.Equal(t, "/app", spec.WorkingDir)
	assert.Equal(t, []string{"uvicorn", "main:app", "--host", "0.0.0.0", "--proxy-headers"}, spec.Cmd)
	assert.Equal(t, []string{
		"LANG=C.UTF-8",
		"PATH=/opt/venv/bin:/usr/bin:/bin",
		"PYTHONPATH=/opt/venv/site-packages",
		"PYTHONUNBUFFERED=1",
		"APP_VERSION=v1.4.2",
	}, spec.Env)

	version, ok := spec.Getenv("APP_VERSION")
	require.True(t, ok)
	assert.Equal(t, "v1.4.2", version)

	for _, arg := range spec.Cmd {
		assert.NotContains(t, arg, "--port")
	}
}

func TestLaunchEnv_NoBasePath(t *testing.T) {
	env := domain.LaunchEnv(nil, "/opt/venv", "dev build")
	assert.Equal(t, "PATH=/opt/venv/bin:"+domain.DefaultPath, env[0])
	assert.Equal(t, "APP_VERSION=dev build", env[3])
}

func TestLaunchEnv_OverridesBaseValues(t *testing.T) {
	env := domain.LaunchEnv([]string{"APP_VERSION=stale", "PYTHONUNBUFFERED=0", "HOME=/root"}, "/opt/venv", "2.0")
	assert.Equal(t, []string{
		"APP_VERSION=2.0",
		"PYTHONUNBUFFERED=1",
		"HOME=/root",
		"PATH=/opt/venv/bin:" + domain.DefaultPath,
		"PYTHONPATH=/opt/venv/site-packages",
	}, env)
}

func TestNewLaunchSpec_RefusesRoot(t *testing.T) {
	cfg := domain.DefaultBuildConfig()
	cfg.Identity.UID = 0

	_, err := domain.NewLaunchSpec(cfg, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrElevatedIdentity.Error())
}

func TestLaunchSpec_Identity(t *testing.T) {
	uid, gid, err := domain.LaunchSpec{User: "1000:1001"}.Identity()
	require.NoError(t, err)
	assert.Equal(t, 1000, uid)
	assert.Equal(t, 1001, gid)

	uid, gid, err = domain.LaunchSpec{User: "1200"}.Identity()
	require.NoError(t, err)
	assert.Equal(t, 1200, uid)
	assert.Equal(t, 1200, gid)

	for _, user := range []string{"", "0", "0:0"} {
		_, _, err := domain.LaunchSpec{User: user}.Identity()
		require.Error(t, err, user)
		assert.ErrorContains(t, err, domain.ErrElevatedIdentity.Error())
	}

	_, _, err = domain.LaunchSpec{User: "app"}.Identity()
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrIdentitySwitch.Error())
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "main", domain.ModuleName("main.py"))
	assert.Equal(t, "src.server", domain.ModuleName("./src/server.py"))
}
