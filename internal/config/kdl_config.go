package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from a .rtagsd.kdl file in
// projectRoot, following the teacher's LoadKDL/.lci.kdl convention. Returns
// (nil, nil) if no such file exists.
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, ".rtagsd.kdl")
	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .rtagsd.kdl: %w", err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	if cfg.Project.Root == "" || !filepath.IsAbs(cfg.Project.Root) {
		abs, err := filepath.Abs(filepath.Join(projectRoot, cfg.Project.Root))
		if err == nil {
			cfg.Project.Root = filepath.Clean(abs)
		} else {
			cfg.Project.Root = projectRoot
		}
	}
	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "thread_pool_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.ThreadPoolSize = v
					}
				case "thread_pool_stack_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.ThreadPoolStackSize = v
					}
				case "completion_cache_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.CompletionCacheSize = v
					}
				case "data_dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Index.DataDir = s
					}
				case "watch_system_paths":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchSystemPaths = b
					}
				case "allow_multiple_builds":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.AllowMultipleBuilds = b
					}
				case "validate":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.Validate = b
					}
				case "no_file_manager_watch":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.NoFileManagerWatch = b
					}
				case "ignore_printf_fixits":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.IgnorePrintfFixits = b
					}
				}
			}
		case "timers":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "save_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Timers.SaveTimeout = msDuration(v)
					}
				case "sync_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Timers.SyncTimeout = msDuration(v)
					}
				case "modified_files_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Timers.ModifiedFilesTimeout = msDuration(v)
					}
				}
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
