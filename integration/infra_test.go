//go:build integration

package integration_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/goccy/go-yaml"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/age-gate/internal/config"
	"github.com/openkcm/age-gate/internal/dbtest/postgrestest"
	"github.com/openkcm/age-gate/internal/dbtest/valkeytest"
)

type closeFunc func(ctx context.Context)

type infraStat struct {
	PostgresPort   nat.Port
	ValKeyPort     nat.Port
	ConfigFilePath string
	Procdir        string
	Cfg            config.Config

	closeFuncs []closeFunc
}

func initInfra(t *testing.T, cmdName string) (istat infraStat) {
	t.Helper()

	// The config is read from $PWD/config.yaml, so every process runs in
	// its own directory.
	wd, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")
	istat.Procdir = filepath.Join(wd, cmdName+"-test")
	istat.ConfigFilePath = filepath.Join(istat.Procdir, "config.yaml")

	err = os.MkdirAll(istat.Procdir, fs.ModePerm)
	require.NoError(t, err, "failed to create a dir for the process")

	err = os.WriteFile(istat.ConfigFilePath, []byte(validConfig), fs.ModePerm)
	require.NoError(t, err, "failed to write config file")

	err = commoncfg.LoadConfig(&istat.Cfg, nil, istat.Procdir)
	require.NoError(t, err, "failed to load config")

	istat.Cfg.HTTP.Address = "unix://" + filepath.Join(istat.Procdir, cmdName+".sock")
	istat.Cfg.Status.Enabled = false

	return istat
}

func (istat *infraStat) PreparePostgres(t *testing.T) {
	t.Helper()

	pgClient, pgPort, pgTerminate := postgrestest.Start(t.Context())
	pgClient.Close()

	istat.PostgresPort = pgPort
	istat.closeFuncs = append(istat.closeFuncs, pgTerminate)

	istat.Cfg.Storage.Type = config.StorageTypeSQL
	istat.Cfg.Database.Name = postgrestest.DBName
	istat.Cfg.Database.User = commoncfg.SourceRef{Source: "embedded", Value: postgrestest.DBUser}
	istat.Cfg.Database.Password = commoncfg.SourceRef{Source: "embedded", Value: postgrestest.DBPassword}
	istat.Cfg.Database.Host = commoncfg.SourceRef{Source: "embedded", Value: postgrestest.DBHost}
	istat.Cfg.Database.Port = pgPort.Port()
}

func (istat *infraStat) PrepareValKey(t *testing.T) {
	t.Helper()

	_, vkPort, vkTerminate := valkeytest.Start(t.Context())

	istat.ValKeyPort = vkPort
	istat.closeFuncs = append(istat.closeFuncs, vkTerminate)

	istat.Cfg.Storage.Type = config.StorageTypeValKey
	istat.Cfg.ValKey.Host = commoncfg.SourceRef{Source: "embedded", Value: valkeytest.Addr(vkPort)}
}

// PrepareConfig writes a config file for running the test into the ConfigFilePath.
func (istat *infraStat) PrepareConfig(t *testing.T) {
	t.Helper()

	configFile, err := os.Create(istat.ConfigFilePath)
	require.NoError(t, err, "failed to create config file")
	defer configFile.Close()

	err = yaml.NewEncoder(configFile).Encode(istat.Cfg)
	require.NoError(t, err, "failed to write config")
}

// Run runs cmdName in Procdir and stops it after timeout.
func (istat *infraStat) Run(t *testing.T, cmdName string, timeout time.Duration) {
	t.Helper()

	istat.Start(t, cmdName, timeout)()
}

// Start starts cmdName in Procdir. The returned func waits for the process,
// which is killed after timeout. A killed process counts as success.
func (istat *infraStat) Start(t *testing.T, cmdName string, timeout time.Duration) (wait func()) {
	t.Helper()

	currdir, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")

	t.Chdir(istat.Procdir)

	commandCtx, cancelCommand := context.WithTimeout(t.Context(), timeout)

	cmd := exec.CommandContext(commandCtx, filepath.Join(currdir, binary), cmdName)

	cmdOutPath := filepath.Join(currdir, cmdName+".log")
	cmdOut, err := os.Create(cmdOutPath)
	require.NoError(t, err, "failed to create a log file")

	cmd.Stdout = cmdOut
	cmd.Stderr = cmdOut
	t.Logf("starting an app process. Logs will be saved into %s", cmdOutPath)

	require.NoError(t, cmd.Start(), "failed to start the process")

	return func() {
		defer cancelCommand()
		defer cmdOut.Close()

		err := cmd.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && !ws.Signaled() {
					t.Fatalf("process exited abnormally: %s", err)
				}
			}
		}
	}
}

func (istat *infraStat) Close(ctx context.Context) {
	os.Remove(istat.ConfigFilePath)
	os.RemoveAll(istat.Procdir)

	for _, close := range istat.closeFuncs {
		close(ctx)
	}
}
