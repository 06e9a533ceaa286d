package config

import "os"

// expandEnv expands ${VAR} and $VAR references using os.Expand before YAML
// parsing, so that secrets never need to be committed to meetingbot.yaml.
func expandEnv(raw string) string {
	return os.Expand(raw, func(key string) string {
		return os.Getenv(key)
	})
}
