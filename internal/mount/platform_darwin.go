//go:build darwin

package mount

func defaultPlatform(runner Runner, versionTool string) Platform {
	return toolPlatform{runner: runner, tool: versionTool}
}
