package index

import "strings"

const (
	defaultChunkTarget = 400
	defaultChunkMax    = 600
)

type chunkOptions struct {
	target int
	max    int
}

func defaultChunkOptions() chunkOptions {
	return chunkOptions{target: defaultChunkTarget, max: defaultChunkMax}
}

// chunkText splits long recall text into paragraph-aligned pieces so a
// substring match stays local to one chunk. Short text is a single chunk.
func chunkText(text string, opts chunkOptions) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.max {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)

	var chunks []string
	var accum string
	flush := func() {
		t := strings.TrimSpace(accum)
		if t == "" {
			return
		}
		if len(t) > opts.max {
			chunks = append(chunks, hardSplit(t, opts.target)...)
		} else {
			chunks = append(chunks, t)
		}
		accum = ""
	}

	for _, p := range paragraphs {
		if accum == "" {
			accum = p
			continue
		}
		combined := accum + "\n\n" + p
		if len(combined) <= opts.target {
			accum = combined
		} else {
			flush()
			accum = p
		}
	}
	flush()

	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hardSplit breaks an oversized paragraph on line boundaries.
func hardSplit(text string, target int) []string {
	lines := strings.Split(text, "\n")
	var out []string
	var current []string
	size := 0

	for _, line := range lines {
		if size+len(line) > target && len(current) > 0 {
			t := strings.TrimSpace(strings.Join(current, "\n"))
			if t != "" {
				out = append(out, t)
			}
			current = nil
			size = 0
		}
		current = append(current, line)
		size += len(line) + 1
	}
	if t := strings.TrimSpace(strings.Join(current, "\n")); t != "" {
		out = append(out, t)
	}
	return out
}
