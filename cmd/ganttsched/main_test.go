package main_test

import (
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/Sylphy0052/GanttChartWebUI-sub002/internal/testsupport"
)

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			return testsupport.SetupScriptEnv(t, env)
		},
	})
}
