package ui

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"

	"drillx/internal/pipeline"
	"drillx/pkg/hashing/core"
	"drillx/pkg/hashing/factory"
)

// DigestRow is one lane of a rendered batch
type DigestRow struct {
	Lane   int
	Nonce  uint64
	Digest []byte
}

// RowsFrom pairs a batch's digests with its nonces
func RowsFrom(digests, nonces []byte) []DigestRow {
	n := len(digests) / core.DigestSize
	if len(nonces) < n*core.NonceSize {
		n = len(nonces) / core.NonceSize
	}
	rows := make([]DigestRow, n)
	for i := range rows {
		nonce := nonces[i*core.NonceSize : (i+1)*core.NonceSize]
		rows[i] = DigestRow{
			Lane:   i,
			Nonce:  binary.LittleEndian.Uint64(nonce),
			Digest: digests[i*core.DigestSize : (i+1)*core.DigestSize],
		}
	}
	return rows
}

// RenderDigests renders up to limit lanes as a table. Lanes without a
// solution are shown as "-". limit <= 0 renders every lane.
func RenderDigests(rows []DigestRow, limit int) string {
	shown := rows
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(labelStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers("LANE", "NONCE", "DIGEST", "DIFFICULTY")

	for _, r := range shown {
		digest, diff := "-", "-"
		if s, err := core.DecodeDigest(r.Digest); err == nil && !s.IsEmpty() {
			digest = hex.EncodeToString(r.Digest)
			nonce := core.NonceBytes(r.Nonce)
			diff = strconv.FormatUint(uint64(core.Difficulty(s.Hash(nonce[:]))), 10)
		}
		t.Row(strconv.Itoa(r.Lane), strconv.FormatUint(r.Nonce, 10), digest, diff)
	}

	out := t.Render()
	if hidden := len(rows) - len(shown); hidden > 0 {
		out += "\n" + helpStyle.Render(fmt.Sprintf("... %d more lanes", hidden))
	}
	return out
}

// RenderBest renders the best lane of a batch
func RenderBest(best pipeline.BestResult) string {
	if !best.Found {
		return warnStyle.Render("no lane found a solution")
	}

	var b strings.Builder
	b.WriteString(successStyle.Render("Best lane") + "\n")
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("lane:      "), best.Lane))
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("nonce:     "), best.Nonce))
	b.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("difficulty:"), best.Difficulty))
	digest := best.Solution.Digest()
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("digest:    "), hex.EncodeToString(digest[:])))
	b.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("hash:      "), hex.EncodeToString(best.Hash[:])))
	return panelStyle.Render(b.String())
}

// RenderReport renders a backend detection report
func RenderReport(report *factory.DetectionReport, width int) string {
	var b strings.Builder
	b.WriteString(Title("Backends") + "\n\n")

	for _, s := range report.Backends {
		mark := errorStyle.Render("✗")
		if s.Available {
			mark = successStyle.Render("✓")
		}
		line := fmt.Sprintf("%s %-7s %s", mark, s.Name, s.Description)
		if s.Available && s.Capabilities != nil {
			line += labelStyle.Render(fmt.Sprintf(" (engine %s, heap %d, max batch %d)",
				s.Capabilities.Name, s.Capabilities.HeapSize, s.Capabilities.MaxBatchSize))
		}
		if !s.Available && s.Reason != "" {
			line += warnStyle.Render(" " + s.Reason)
		}
		if width > 0 {
			line = ansi.Truncate(line, width, "…")
		}
		b.WriteString(line + "\n")
	}

	b.WriteString(fmt.Sprintf("\n%s %s\n", labelStyle.Render("best:"), infoStyle.Render(report.BestMethod)))
	if report.Host != nil {
		b.WriteString("\n" + Title("Host") + "\n\n")
		b.WriteString(report.Host.Summary())
	}
	return b.String()
}
