package taskdef

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"taskrun/internal/executor"
)

const outputPreview = 512

func shellTask(def Definition) (executor.Task[string], error) {
	if strings.TrimSpace(def.Command) == "" {
		return nil, errors.New("shell: command is required")
	}

	return func(ctx context.Context) (string, error) {
		cmd := exec.CommandContext(ctx, "sh", "-c", def.Command)
		if def.Dir != "" {
			cmd.Dir = def.Dir
		}
		out, err := cmd.CombinedOutput()
		text := strings.TrimSpace(string(out))
		if len(text) > outputPreview {
			text = text[:outputPreview] + "..."
		}
		if err != nil {
			if text != "" {
				return "", fmt.Errorf("shell: %w: %s", err, text)
			}
			return "", fmt.Errorf("shell: %w", err)
		}
		return text, nil
	}, nil
}
