package builtin

import (
	"fmt"
	"slices"
	"strings"
)

const (
	defaultMaxLines = 2000
	defaultMaxBytes = 50 * 1024
)

type truncation struct {
	Content     string
	Truncated   bool
	TotalLines  int
	OutputLines int
}

func formatSize(bytes int) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%dB", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(bytes)/1024.0)
	default:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1024.0*1024.0))
	}
}

// truncateHead keeps leading whole lines within both limits.
func truncateHead(content string, maxLines, maxBytes int) truncation {
	lines := strings.Split(content, "\n")
	if len(lines) <= maxLines && len(content) <= maxBytes {
		return truncation{Content: content, TotalLines: len(lines), OutputLines: len(lines)}
	}

	kept := make([]string, 0, min(len(lines), maxLines))
	size := 0
	for i, line := range lines {
		if i >= maxLines {
			break
		}
		lineBytes := len(line)
		if i > 0 {
			lineBytes++
		}
		if size+lineBytes > maxBytes {
			break
		}
		kept = append(kept, line)
		size += lineBytes
	}
	return truncation{
		Content:     strings.Join(kept, "\n"),
		Truncated:   true,
		TotalLines:  len(lines),
		OutputLines: len(kept),
	}
}

// truncateTail keeps trailing lines within both limits. A single oversized
// last line is cut at a rune boundary.
func truncateTail(content string, maxLines, maxBytes int) truncation {
	lines := strings.Split(content, "\n")
	if len(lines) <= maxLines && len(content) <= maxBytes {
		return truncation{Content: content, TotalLines: len(lines), OutputLines: len(lines)}
	}

	kept := make([]string, 0, min(len(lines), maxLines))
	size := 0
	for i := len(lines) - 1; i >= 0 && len(kept) < maxLines; i-- {
		line := lines[i]
		lineBytes := len(line)
		if len(kept) > 0 {
			lineBytes++
		}
		if size+lineBytes > maxBytes {
			if len(kept) == 0 {
				kept = append(kept, tailBytes(line, maxBytes))
			}
			break
		}
		kept = append(kept, line)
		size += lineBytes
	}
	slices.Reverse(kept)
	return truncation{
		Content:     strings.Join(kept, "\n"),
		Truncated:   true,
		TotalLines:  len(lines),
		OutputLines: len(kept),
	}
}

func tailBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	start := len(s) - maxBytes
	for start < len(s) && (s[start]&0xC0) == 0x80 {
		start++
	}
	return s[start:]
}
