package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/aristath/pmdispatch/internal/taskdoc"
)

// Entry is one line of a task list file.
type Entry struct {
	AgentType string `json:"agentType" yaml:"agentType" toml:"agentType"`
	TaskDate  string `json:"taskDate" yaml:"taskDate" toml:"taskDate"`
	TaskID    string `json:"taskId" yaml:"taskId" toml:"taskId"`
}

// Pair converts the entry, validating its task reference.
func (e Entry) Pair() (Pair, error) {
	ref := taskdoc.Ref{Date: e.TaskDate, ID: e.TaskID}
	if err := ref.Validate(); err != nil {
		return Pair{}, err
	}
	if e.AgentType == "" {
		return Pair{}, fmt.Errorf("entry %s has no agentType", ref)
	}
	return Pair{Agent: e.AgentType, Task: ref}, nil
}

// taskListDoc is the wrapped form. TOML has no top-level arrays, so it always
// uses [[tasks]].
type taskListDoc struct {
	Tasks []Entry `json:"tasks" yaml:"tasks" toml:"tasks"`
}

// LoadTaskList reads a task list from path. The format follows the extension:
// .yaml/.yml, .toml, anything else is JSON. JSON and YAML accept either a bare
// list or a {tasks: [...]} document.
func LoadTaskList(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task list: %w", err)
	}

	entries, err := ParseTaskList(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("parse task list %s: %w", path, err)
	}
	return entries, nil
}

// ParseTaskList decodes data in the format named by ext.
func ParseTaskList(data []byte, ext string) ([]Entry, error) {
	switch ext {
	case ".toml":
		var doc taskListDoc
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return doc.Tasks, nil

	case ".yaml", ".yml":
		var list []Entry
		if err := yaml.Unmarshal(data, &list); err == nil {
			return list, nil
		}
		var doc taskListDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return doc.Tasks, nil

	default:
		trimmed := bytes.TrimSpace(data)
		if bytes.HasPrefix(trimmed, []byte("[")) {
			var list []Entry
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, err
			}
			return list, nil
		}
		var doc taskListDoc
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, err
		}
		return doc.Tasks, nil
	}
}

// Pairs converts every entry, stopping at the first invalid one.
func Pairs(entries []Entry) ([]Pair, error) {
	pairs := make([]Pair, 0, len(entries))
	for i, e := range entries {
		p, err := e.Pair()
		if err != nil {
			return nil, fmt.Errorf("task list entry %d: %w", i+1, err)
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}
