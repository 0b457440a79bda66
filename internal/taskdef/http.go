package taskdef

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"taskrun/internal/executor"
)

// responsePreview bounds how much of a body ends up in the result value.
const responsePreview = 256

func httpTask(def Definition, client *http.Client) (executor.Task[string], error) {
	if strings.TrimSpace(def.URL) == "" {
		return nil, errors.New("http: url is required")
	}
	method := strings.ToUpper(strings.TrimSpace(def.Method))
	if method == "" {
		method = http.MethodGet
	}
	if client == nil {
		client = http.DefaultClient
	}
	expect := def.ExpectStatus

	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, method, def.URL, nil)
		if err != nil {
			return "", err
		}
		for k, v := range def.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		// Drain so the connection can be reused; keep a short preview.
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, responsePreview))
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case expect > 0 && resp.StatusCode != expect:
			return "", fmt.Errorf("http: %s %s: got status %d, want %d", method, def.URL, resp.StatusCode, expect)
		case expect == 0 && resp.StatusCode >= 400:
			return "", fmt.Errorf("http: %s %s: status %d", method, def.URL, resp.StatusCode)
		}
		return fmt.Sprintf("%s (%d bytes)", resp.Status, len(preview)), nil
	}, nil
}
