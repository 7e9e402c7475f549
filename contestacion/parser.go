package contestacion

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/sweetpotato0/lexia/preprocess"
)

var (
	romanHeading  = regexp.MustCompile(`^([IVXLCDM]+)\s*[.)\-–]\s*(.*)$`)
	arabicHeading = regexp.MustCompile(`^(\d{1,3})\s*[.)\-–]\s*(.*)$`)
)

// Spanish procedural headings that open a block even without numbering.
var knownHeadings = map[string]string{
	"HECHOS":                 "hechos",
	"FUNDAMENTOS DE DERECHO": "fundamentos",
	"FUNDAMENTOS JURIDICOS":  "fundamentos",
	"ANTECEDENTES":           "antecedentes",
	"ANTECEDENTES DE HECHO":  "antecedentes",
	"PRETENSIONES":           "pretensiones",
	"SUPLICO":                "suplico",
	"OTROSI":                 "otrosi",
	"OTROSI DIGO":            "otrosi",
}

// ParseBlocks splits a demand document into ordered blocks using structural
// cues: roman or arabic numbered headings and well-known all-caps section
// titles. A document without any recognizable structure yields zero blocks.
func ParseBlocks(raw string) []DemandBlock {
	raw = preprocess.Normalize(raw)
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	type rawBlock struct {
		title   string
		kind    string
		content []string
	}

	var blocks []rawBlock
	var current *rawBlock

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if current != nil {
				current.content = append(current.content, "")
			}
			continue
		}

		if title, kind, ok := headingOf(trimmed); ok {
			blocks = append(blocks, rawBlock{title: title, kind: kind})
			current = &blocks[len(blocks)-1]
			continue
		}
		if current != nil {
			current.content = append(current.content, trimmed)
		}
	}

	out := make([]DemandBlock, 0, len(blocks))
	for i, b := range blocks {
		out = append(out, DemandBlock{
			ID:      uuid.NewString(),
			Order:   i + 1,
			Title:   b.title,
			Content: strings.TrimSpace(strings.Join(b.content, "\n")),
			Type:    b.kind,
		})
	}
	return out
}

// headingOf reports whether a line opens a new block, returning its title.
func headingOf(line string) (title, kind string, ok bool) {
	if m := romanHeading.FindStringSubmatch(line); m != nil {
		title = strings.TrimSpace(m[2])
		if title == "" {
			title = m[1]
		}
		return title, classifyHeading(title), true
	}
	if m := arabicHeading.FindStringSubmatch(line); m != nil {
		title = strings.TrimSpace(m[2])
		if title == "" {
			title = m[1]
		}
		return title, classifyHeading(title), true
	}
	if kind, found := knownHeadings[foldHeading(line)]; found {
		return line, kind, true
	}
	return "", "", false
}

func classifyHeading(title string) string {
	if kind, found := knownHeadings[foldHeading(title)]; found {
		return kind
	}
	return ""
}

var headingFolder = strings.NewReplacer(
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U", "Ñ", "N",
	"á", "A", "é", "E", "í", "I", "ó", "O", "ú", "U", "ü", "U", "ñ", "N",
)

func foldHeading(s string) string {
	return strings.ToUpper(headingFolder.Replace(strings.TrimSpace(s)))
}
