// Package config holds the options block spec §6 describes, following the
// teacher's struct-of-structs shape (Config -> Project/Index/Performance...).
package config

import (
	"time"
)

// Config is the full set of options driving one indexing daemon instance.
type Config struct {
	Project Project
	Index   Index
	Timers  Timers
}

// Project identifies the source tree being indexed.
type Project struct {
	Root string
	Name string
}

// Index holds the options named in spec §6 ("Options (taken from an
// options block)").
type Index struct {
	ThreadPoolSize       int
	ThreadPoolStackSize  int
	CompletionCacheSize  int // bound of the translation-unit cache, §4.D
	DataDir              string
	WatchSystemPaths     bool
	AllowMultipleBuilds  bool
	Validate             bool
	NoFileManagerWatch   bool
	IgnorePrintfFixits   bool
	RespectFileFilterEnv bool // consult RTAGS_FILE_FILTER, §6
}

// Timers holds the debounce windows spec §4.G/§5 name.
type Timers struct {
	SaveTimeout          time.Duration
	SyncTimeout          time.Duration
	ModifiedFilesTimeout time.Duration
}

// Default returns the configuration the teacher's parseKDL seeds before
// overlaying a .rtagsd.kdl file, adapted to this daemon's option set.
func Default() *Config {
	return &Config{
		Project: Project{Root: "."},
		Index: Index{
			ThreadPoolSize:       4,
			ThreadPoolStackSize:  0,
			CompletionCacheSize:  5,
			DataDir:              ".rtagsd",
			WatchSystemPaths:     false,
			AllowMultipleBuilds:  false,
			Validate:             false,
			NoFileManagerWatch:   false,
			IgnorePrintfFixits:   false,
			RespectFileFilterEnv: true,
		},
		Timers: Timers{
			SaveTimeout:          2000 * time.Millisecond,
			SyncTimeout:          2000 * time.Millisecond,
			ModifiedFilesTimeout: 50 * time.Millisecond,
		},
	}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
