package config

import "fmt"

// Validate checks that Config values are within sane ranges, mirroring the
// teacher's SearchRanking.Validate pattern.
func (c *Config) Validate() error {
	if c.Index.ThreadPoolSize < 1 {
		return fmt.Errorf("Index.ThreadPoolSize must be >= 1, got %d", c.Index.ThreadPoolSize)
	}
	if c.Index.CompletionCacheSize < 0 {
		return fmt.Errorf("Index.CompletionCacheSize must be >= 0, got %d", c.Index.CompletionCacheSize)
	}
	if c.Timers.SaveTimeout < 0 || c.Timers.SyncTimeout < 0 || c.Timers.ModifiedFilesTimeout < 0 {
		return fmt.Errorf("Timers must be non-negative")
	}
	if c.Project.Root == "" {
		return fmt.Errorf("Project.Root must not be empty")
	}
	return nil
}
