package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"unicode/utf8"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// apiURLFromEnv returns the HTTP API base URL from QUARRY_API or a default.
func apiURLFromEnv() string {
	if v := os.Getenv("QUARRY_API"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

func resolveBaseURL(f BaseURLFunc) string {
	if f != nil {
		if v := f(); v != "" {
			return v
		}
	}
	return apiURLFromEnv()
}

// postJSON posts body to path and decodes the response into out when non-nil.
func postJSON(ctx context.Context, base, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

// getJSON fetches path (including any query string) and decodes into out.
func getJSON(ctx context.Context, base, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	return doJSON(req, out)
}

func doJSON(req *http.Request, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// decodedJob rewrites a job's base64 data field as data_json, data_text,
// or data_b64 in order of preference.
func decodedJob(job map[string]any) map[string]any {
	raw, ok := job["data"].(string)
	if !ok || raw == "" {
		return job
	}
	payload, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return job
	}
	delete(job, "data")
	// Try JSON first if it looks like JSON
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			job["data_json"] = v
			return job
		}
	}
	// Then UTF-8 text if valid
	if utf8.Valid(payload) {
		job["data_text"] = string(payload)
		return job
	}
	// Fallback to base64
	job["data_b64"] = raw
	return job
}
