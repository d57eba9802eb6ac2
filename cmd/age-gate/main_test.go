package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCmd(t *testing.T) {
	cmd := rootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"version", "api-server", "housekeeper", "migrate"}, names)

	flag := cmd.PersistentFlags().Lookup("graceful-shutdown")
	if assert.NotNil(t, flag) {
		assert.Equal(t, "1s", flag.DefValue)
	}
}

func TestVersionCmd(t *testing.T) {
	BuildInfo = `{"version":"v0.0.1"}`
	t.Cleanup(func() { BuildInfo = "{}"; isVersionCmd = false })

	cmd := rootCmd()
	cmd.SetArgs([]string{"version"})

	assert.NoError(t, cmd.Execute())
	assert.True(t, isVersionCmd)
}
