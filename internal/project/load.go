package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/aem/internal/model"
	"github.com/ppiankov/aem/internal/store"
)

// LoadProject reads project.json. A missing file yields an empty project named after the root.
func LoadProject(l Layout) (*model.Project, error) {
	p := &model.Project{ProjectID: l.ID()}
	if _, err := store.ReadJSON(l.ProjectFile(), p); err != nil {
		return nil, err
	}
	if p.ProjectID == "" {
		p.ProjectID = l.ID()
	}
	return p, nil
}

// LoadFindings reads findings/*.json sorted by file name. Malformed files are skipped.
func LoadFindings(l Layout, logger *zap.Logger) ([]model.Finding, error) {
	files, err := listJSON(l.FindingsDir())
	if err != nil {
		return nil, err
	}

	findings := make([]model.Finding, 0, len(files))
	for _, f := range files {
		var fd model.Finding
		if _, err := store.ReadJSON(f, &fd); err != nil {
			logger.Warn("skipping malformed finding", zap.String("file", f), zap.Error(err))
			continue
		}
		fd.File = f
		if fd.FindingID == "" {
			fd.FindingID = strings.TrimSuffix(filepath.Base(f), ".json")
		}
		findings = append(findings, fd)
	}
	return findings, nil
}

// LoadSources reads sources/*.json metadata, ignoring *_content.json bodies
func LoadSources(l Layout, logger *zap.Logger) ([]model.SourceRecord, error) {
	files, err := listJSON(l.SourcesDir())
	if err != nil {
		return nil, err
	}

	sources := make([]model.SourceRecord, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f, "_content.json") {
			continue
		}
		var src model.SourceRecord
		if _, err := store.ReadJSON(f, &src); err != nil {
			logger.Warn("skipping malformed source", zap.String("file", f), zap.Error(err))
			continue
		}
		if src.SourceID == "" {
			src.SourceID = strings.TrimSuffix(filepath.Base(f), ".json")
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// SourceContent is the body a reader stored next to a source record
type SourceContent struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// LoadSourceContent reads sources/<id>_content.json. Missing content returns (nil, nil).
func LoadSourceContent(l Layout, sourceID string) (*SourceContent, error) {
	var sc SourceContent
	found, err := store.ReadJSON(l.SourceContent(sourceID), &sc)
	if err != nil || !found {
		return nil, err
	}
	return &sc, nil
}

// LoadReliability reads the optional URL→reliability map
func LoadReliability(l Layout) (map[string]float64, error) {
	scores := map[string]float64{}
	if _, err := store.ReadJSON(l.SourceReliability(), &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// LoadVerifyLedger reads verify/claim_ledger.json. Both {"claims":[...]} and a
// bare array are accepted, and loose upstream field names are normalized.
func LoadVerifyLedger(l Layout) ([]model.VerifyClaim, error) {
	path := l.VerifyLedger()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &store.StorageError{Op: "read", Path: path, Err: err}
	}

	rows, err := decodeVerifyRows(data)
	if err != nil {
		return nil, &store.StorageError{Op: "decode", Path: path, Err: err}
	}

	claims := make([]model.VerifyClaim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, normalizeVerifyRow(row))
	}
	return claims, nil
}

func decodeVerifyRows(data []byte) ([]map[string]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}

	var rows []map[string]json.RawMessage
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	var wrapper struct {
		Claims []map[string]json.RawMessage `json:"claims"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Claims, nil
}

func normalizeVerifyRow(row map[string]json.RawMessage) model.VerifyClaim {
	vc := model.VerifyClaim{
		ClaimID:             firstString(row, "claim_id", "id"),
		Text:                firstString(row, "text", "claim"),
		SupportingSourceIDs: firstStrings(row, "supporting_source_ids", "sources", "source_urls"),
		IsVerified:          firstBool(row, "is_verified", "verified"),
		VerificationTier:    model.ParseVerificationTier(firstString(row, "verification_tier", "tier", "status")),
	}
	if raw, ok := row["confidence"]; ok {
		var f float64
		if json.Unmarshal(raw, &f) == nil {
			vc.Confidence = &f
		}
	}
	return vc
}

func firstString(row map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := row[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		var n json.Number
		if json.Unmarshal(raw, &n) == nil && n != "" {
			return n.String()
		}
	}
	return ""
}

func firstStrings(row map[string]json.RawMessage, keys ...string) []string {
	for _, k := range keys {
		raw, ok := row[k]
		if !ok {
			continue
		}
		var list []string
		if json.Unmarshal(raw, &list) == nil {
			return dedupe(list)
		}
		var single string
		if json.Unmarshal(raw, &single) == nil && single != "" {
			return []string{single}
		}
	}
	return []string{}
}

func firstBool(row map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		raw, ok := row[k]
		if !ok {
			continue
		}
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return b
		}
	}
	return false
}

// dedupe keeps the first occurrence of every non-empty entry
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func listJSON(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &store.StorageError{Op: "list", Path: dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
