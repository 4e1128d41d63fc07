package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"toolrunner/internal/tools"
)

const editToolName = "edit"

var (
	ErrEditTextNotFound  = errors.New("could not find the exact text")
	ErrEditTextNotUnique = errors.New("text to replace occurs more than once")
)

type editInput struct {
	Path    string `json:"path" jsonschema:"description=Path to the file, relative to the workspace or absolute"`
	OldText string `json:"oldText" jsonschema:"description=Exact text to replace; must occur once"`
	NewText string `json:"newText" jsonschema:"description=Replacement text"`
}

func newEditTool(ws workspace) (tools.Registration, error) {
	return tools.NewFunc(editToolName,
		"Replace one unique occurrence of oldText with newText in a workspace file.",
		func(ctx context.Context, input editInput) (tools.Result, error) {
			if err := ctx.Err(); err != nil {
				return tools.Result{}, err
			}
			if input.OldText == "" {
				return tools.Result{}, fmt.Errorf("oldText is required")
			}
			path, err := ws.existing(input.Path)
			if err != nil {
				return tools.Result{}, err
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return tools.Result{}, fmt.Errorf("read %s: %w", input.Path, err)
			}

			updated, err := replaceOnce(string(raw), input.OldText, input.NewText)
			if err != nil {
				return tools.Result{}, fmt.Errorf("edit %s: %w", input.Path, err)
			}
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return tools.Result{}, fmt.Errorf("write %s: %w", input.Path, err)
			}
			return tools.Result{Content: fmt.Sprintf("Replaced %d bytes with %d bytes in %s",
				len(input.OldText), len(input.NewText), input.Path)}, nil
		})
}

// replaceOnce matches on LF-normalized text and writes back with the file's
// original line ending and byte order mark.
func replaceOnce(content, oldText, newText string) (string, error) {
	bom, body := stripBOM(content)
	ending := detectLineEnding(body)
	body = normalizeToLF(body)
	oldText = normalizeToLF(oldText)

	switch strings.Count(body, oldText) {
	case 0:
		return "", ErrEditTextNotFound
	case 1:
	default:
		return "", ErrEditTextNotUnique
	}
	body = strings.Replace(body, oldText, normalizeToLF(newText), 1)
	return bom + restoreLineEndings(body, ending), nil
}

func detectLineEnding(content string) string {
	crlf := strings.Index(content, "\r\n")
	lf := strings.Index(content, "\n")
	if crlf >= 0 && crlf < lf {
		return "\r\n"
	}
	return "\n"
}

func normalizeToLF(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func restoreLineEndings(text, ending string) string {
	if ending == "\r\n" {
		return strings.ReplaceAll(text, "\n", "\r\n")
	}
	return text
}

func stripBOM(content string) (string, string) {
	if rest, ok := strings.CutPrefix(content, "\uFEFF"); ok {
		return "\uFEFF", rest
	}
	return "", content
}
