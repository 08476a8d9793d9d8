// Package importer loads markdown vocabulary files into the store. Two
// file shapes are supported: plain vocabulary tables (word + definition
// per row, grouped under "## Section" headings) and distinction files
// (per-cluster blocks split by horizontal rules, each with a title,
// optional preamble, a three-column table, and blockquote commentary).
package importer

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"lexvoss/pkg/vocab"
)

var (
	sectionRe   = regexp.MustCompile(`^## (.+)`)
	wordRowRe   = regexp.MustCompile(`\|\s*\*\*(.+?)\*\*\s*\|\s*(.+?)\s*\|`)
	entryRowRe  = regexp.MustCompile(`\|\s*\*\*(.+?)\*\*\s*\|\s*(.+?)\s*\|\s*(.+?)\s*\|`)
	separatorRe = regexp.MustCompile(`\|[-|\s]+\|`)
)

// ParseVocabularyFile reads a vocabulary markdown file into Words.
//
// Rows look like "| **word** | definition |" with an optional trailing
// example column, under "## Section" headings.
func ParseVocabularyFile(path string) ([]vocab.Word, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source := filepath.Base(path)
	var words []vocab.Word
	section := "Unknown"

	for _, line := range strings.Split(string(data), "\n") {
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			section = strings.TrimSpace(m[1])
			continue
		}
		if !strings.HasPrefix(line, "|") {
			continue
		}
		m := wordRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		definition := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[2]), "|"))
		words = append(words, vocab.Word{
			Word:       strings.TrimSpace(m[1]),
			Definition: definition,
			Section:    section,
			SourceFile: source,
		})
	}
	return words, nil
}

// ParseDistinctionsFile reads a distinctions markdown file into Clusters.
//
// Clusters are separated by horizontal rules. Each block carries a
// "## Title" heading, an optional preamble line, a three-column table
// (word, meaning, distinction), and optional "> ..." commentary.
func ParseDistinctionsFile(path string) ([]vocab.Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	source := filepath.Base(path)
	var clusters []vocab.Cluster

	for _, block := range strings.Split(string(data), "\n---\n") {
		c := parseClusterBlock(strings.TrimSpace(block))
		if c == nil || len(c.Entries) == 0 {
			continue
		}
		c.SourceFile = source
		clusters = append(clusters, *c)
	}
	return clusters, nil
}

func parseClusterBlock(block string) *vocab.Cluster {
	var (
		title      string
		preamble   string
		entries    []vocab.ClusterEntry
		commentary []string
		inTable    bool
		headerSeen bool
	)

	for _, line := range strings.Split(block, "\n") {
		stripped := strings.TrimSpace(line)

		if strings.HasPrefix(stripped, "## ") {
			title = strings.TrimSpace(strings.TrimLeft(stripped, "#"))
			continue
		}
		// Top-level headings belong to the file, not the cluster.
		if strings.HasPrefix(stripped, "# ") {
			continue
		}

		// Preamble: an italic line before the table.
		if !inTable && !headerSeen && strings.HasPrefix(stripped, "*") && !strings.HasPrefix(stripped, "**") {
			preamble = strings.TrimSpace(strings.Trim(stripped, "*"))
			continue
		}
		// Plain-prose preambles ("All mean ...") are kept too.
		if !inTable && !headerSeen && !strings.HasPrefix(stripped, "|") && stripped != "" && !strings.HasPrefix(stripped, ">") {
			if title == "" {
				continue
			}
			preamble = stripped
			continue
		}

		// Table header row: column names vary across sections, so detect
		// by the Word column.
		if strings.HasPrefix(stripped, "|") && !headerSeen {
			if strings.Contains(stripped, "Word") || strings.Contains(stripped, "word") {
				headerSeen = true
				inTable = true
				continue
			}
			if separatorRe.MatchString(stripped) {
				continue
			}
		}

		if strings.HasPrefix(stripped, "|") && separatorRe.MatchString(stripped) {
			inTable = true
			continue
		}

		if strings.HasPrefix(stripped, "|") && inTable {
			if m := entryRowRe.FindStringSubmatch(stripped); m != nil {
				entries = append(entries, vocab.ClusterEntry{
					Word:        strings.TrimSpace(m[1]),
					Meaning:     strings.TrimSpace(m[2]),
					Distinction: strings.TrimSpace(m[3]),
				})
			}
			continue
		}

		if strings.HasPrefix(stripped, ">") {
			inTable = false
			commentary = append(commentary, strings.TrimSpace(strings.TrimLeft(stripped, ">")))
			continue
		}
	}

	if title == "" {
		return nil
	}
	return &vocab.Cluster{
		Title:      title,
		Preamble:   preamble,
		Commentary: strings.Join(commentary, "\n"),
		Entries:    entries,
	}
}
