/*
Package config provides configuration management for AgentFS.

Values are layered, lowest priority first:

 1. Compiled-in defaults (NewDefault)
 2. A YAML file, named by --config or the AGENTFS_CONFIG environment variable
 3. AGENTFS_* environment variables

# Sections

	global:   log_level, log_file, log_format, log_max_size_mb,
	          log_max_backups, log_compress
	paths:    agentfs_dir, run_dir
	bridge:   stat_cache.{enabled, max_entries, ttl}
	mount:    fs_type, mount_tool, min_major_version, extension_ids,
	          poll_interval, version_tool, extension_tool
	metrics:  enabled, port, namespace

# Usage

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
*/
package config
