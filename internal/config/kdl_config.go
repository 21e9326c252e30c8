package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL reads a KDL service-config file. A missing file is not an error:
// the caller falls back to Default().
func LoadKDL(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return parseKDL(string(content))
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "server":
			for _, cn := range n.Children {
				if nodeName(cn) == "port" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Server.Port = v
					}
				}
			}
		case "validator":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Validator.MaxFileSize = int64(v)
					}
				case "max_sync_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Validator.MaxSyncFileSize = int64(v)
					}
				}
			}
		case "parser":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "ocr_enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Parser.OCREnabled = b
					}
				case "languages":
					if langs := collectStringArgs(cn); len(langs) > 0 {
						cfg.Parser.Languages = langs
					}
				}
			}
		case "queue":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "lease_duration_s":
					if v, ok := firstIntArg(cn); ok {
						cfg.Queue.LeaseDuration = time.Duration(v) * time.Second
					}
				case "sweep_interval_s":
					if v, ok := firstIntArg(cn); ok {
						cfg.Queue.SweepInterval = time.Duration(v) * time.Second
					}
				case "max_attempts":
					if v, ok := firstIntArg(cn); ok {
						cfg.Queue.MaxAttempts = v
					}
				case "retry_backoff_base_s":
					if v, ok := firstIntArg(cn); ok {
						cfg.Queue.RetryBackoffBase = time.Duration(v) * time.Second
					}
				case "retry_backoff_max_s":
					if v, ok := firstIntArg(cn); ok {
						cfg.Queue.RetryBackoffMax = time.Duration(v) * time.Second
					}
				}
			}
		case "dispatcher":
			for _, cn := range n.Children {
				if nodeName(cn) == "concurrency" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Dispatcher.Concurrency = v
					}
				}
			}
		case "api":
			for _, cn := range n.Children {
				if nodeName(cn) == "sync_deadline_s" {
					if v, ok := firstIntArg(cn); ok {
						cfg.API.SyncDeadline = time.Duration(v) * time.Second
					}
				}
			}
		case "ratelimit":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.RateLimit.Enabled = b
					}
				case "per_minute":
					if v, ok := firstIntArg(cn); ok {
						cfg.RateLimit.PerMinute = v
					}
				case "per_hour":
					if v, ok := firstIntArg(cn); ok {
						cfg.RateLimit.PerHour = v
					}
				}
			}
		case "cleanup":
			for _, cn := range n.Children {
				if nodeName(cn) == "retention_days" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Cleanup.RetentionDays = v
					}
				}
			}
		case "callback":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_attempts":
					if v, ok := firstIntArg(cn); ok {
						cfg.Callback.MaxAttempts = v
					}
				case "backoff_base_s":
					if v, ok := firstIntArg(cn); ok {
						cfg.Callback.BackoffBase = time.Duration(v) * time.Second
					}
				}
			}
		case "blob":
			for _, cn := range n.Children {
				if nodeName(cn) == "root_dir" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Blob.RootDir = s
					}
				}
			}
		}
	}

	return cfg, nil
}

// Helpers over the kdl-go document model.

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
	case string:
		if iv, err := strconv.Atoi(v); err == nil {
			return iv, true
		}
	}
	return 0, false
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

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
