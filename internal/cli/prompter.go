package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/statement-reconciler/internal/bulk"
	"github.com/Veraticus/statement-reconciler/internal/common"
	"github.com/Veraticus/statement-reconciler/internal/model"
	"github.com/Veraticus/statement-reconciler/internal/undo"
)

const maxDescriptionWidth = 48

// Prompter drives the interactive reconciliation dialogs on a terminal.
type Prompter struct {
	reader *NonBlockingReader
	writer io.Writer
}

// NewPrompter creates a prompter. Nil arguments fall back to stdin and
// stdout.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}
	return &Prompter{reader: NewNonBlockingReader(reader), writer: writer}
}

// ChooseCandidates shows a bulk proposal and records the user's choice on
// it. It reports whether the proposal should be applied; a false result
// leaves the proposal skipped. End of input counts as skipping.
func (p *Prompter) ChooseCandidates(ctx context.Context, proposal *bulk.Proposal) (bool, error) {
	if proposal.State() != bulk.StateCandidatesFound {
		return false, nil
	}

	edit := proposal.Edit
	title := fmt.Sprintf("Apply %s = %s to %d similar operations?",
		edit.Field.Label(), edit.Value, len(proposal.Candidates))
	p.println(RenderBox(title, RenderCandidates(proposal)))

	for {
		p.println("  [A] Apply to all")
		p.println("  [N] Pick by number, e.g. 1,3-4")
		p.println("  [S] Skip")
		p.print(FormatPrompt("Choice"))

		line, err := p.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				proposal.Skip()
				return false, nil
			}
			return false, err
		}

		switch strings.ToLower(line) {
		case "", "a", "all":
			proposal.SelectAll()
			return true, nil
		case "s", "skip":
			proposal.Skip()
			return false, nil
		}

		picked, err := parseSelection(line, len(proposal.Candidates))
		if err != nil {
			p.println(FormatError(err.Error()))
			continue
		}
		ids := make([]string, len(picked))
		for i, idx := range picked {
			ids[i] = proposal.Candidates[idx].ID()
		}
		if err := proposal.Select(ids...); err != nil {
			return false, err
		}
		return true, nil
	}
}

// OfferUndo shows the waiting action and waits for "u" until it expires.
// Any other answer dismisses the action. It reports whether the action was
// undone.
func (p *Prompter) OfferUndo(ctx context.Context, mgr *undo.Manager) (bool, error) {
	action, ok := mgr.Current()
	if !ok {
		return false, nil
	}

	remaining := mgr.Remaining()
	p.println(ToastStyle.Render(fmt.Sprintf("%s %s  [U] undo within %.0fs",
		UndoIcon, action.Description, remaining.Seconds())))
	p.print(FormatPrompt("Undo"))

	readCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	line, err := p.reader.ReadLine(readCtx)
	switch {
	case errors.Is(err, ErrInputCancelled) && ctx.Err() == nil:
		p.println("")
		p.println(SubtleStyle.Render("Undo window closed."))
		return false, nil
	case errors.Is(err, io.EOF):
		p.println("")
		mgr.Cancel()
		return false, nil
	case err != nil:
		return false, err
	}

	if !strings.EqualFold(line, "u") && !strings.EqualFold(line, "undo") {
		mgr.Cancel()
		return false, nil
	}

	undone, err := mgr.Undo(ctx)
	var stale *common.StaleRecordError
	switch {
	case errors.Is(err, undo.ErrNothingToUndo):
		p.println(SubtleStyle.Render("Undo window closed."))
		return false, nil
	case errors.As(err, &stale):
		p.println(FormatWarning(fmt.Sprintf("Undone on %d of %d operations; %d changed since.",
			stale.Applied, stale.Requested, len(stale.StaleIDs))))
		return true, nil
	case err != nil:
		return false, err
	}

	p.println(FormatSuccess("Undone: " + undone.Description))
	return true, nil
}

// Confirm asks a yes/no question. Anything but y/yes is a no.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.print(FormatPrompt(question + " [y/N]"))
	line, err := p.reader.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Ask reads one free-form answer.
func (p *Prompter) Ask(ctx context.Context, question string) (string, error) {
	p.print(FormatPrompt(question))
	return p.reader.ReadLine(ctx)
}

func (p *Prompter) print(s string) {
	if _, err := fmt.Fprint(p.writer, s); err != nil {
		slog.Warn("Failed to write prompt", "error", err)
	}
}

func (p *Prompter) println(s string) {
	if _, err := fmt.Fprintln(p.writer, s); err != nil {
		slog.Warn("Failed to write prompt", "error", err)
	}
}

// parseSelection turns "1,3-4" into sorted zero-based indexes below n.
func parseSelection(input string, n int) ([]int, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("no candidates chosen")
	}

	seen := make(map[int]bool)
	for _, f := range fields {
		lo, hi, isRange := strings.Cut(f, "-")
		from, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid choice %q", f)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid choice %q", f)
			}
		}
		if from > to {
			return nil, fmt.Errorf("invalid range %q", f)
		}
		if from < 1 || to > n {
			return nil, fmt.Errorf("choice %q is outside 1-%d", f, n)
		}
		for i := from; i <= to; i++ {
			seen[i-1] = true
		}
	}

	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

// NewProgressBar creates the bar used by long-running passes.
func NewProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

// RenderCandidates renders a proposal's candidates with their selection
// marks.
func RenderCandidates(proposal *bulk.Proposal) string {
	selected := make(map[string]bool)
	for _, id := range proposal.Selected() {
		selected[id] = true
	}
	return RenderSimilar(proposal.Candidates, selected)
}

// RenderSimilar renders scored candidates in ranking order. A nil selected
// map omits the selection column. Candidates that need a second look are
// flagged.
func RenderSimilar(results []model.SimilarityResult, selected map[string]bool) string {
	headers := []string{"#", "Date", "Amount", "Description", "Score", "Why", "ID"}
	if selected != nil {
		headers = append([]string{""}, headers...)
	}

	rows := make([][]string, len(results))
	for i, c := range results {
		score := fmt.Sprintf("%.0f", c.Score)
		if c.RequiresReview {
			score += " " + WarningIcon
		}
		row := []string{
			strconv.Itoa(i + 1),
			c.Candidate.Date.Format("2006-01-02"),
			FormatAmount(c.Candidate),
			truncate(c.Candidate.Description, maxDescriptionWidth),
			score,
			strings.Join(c.MatchReasons, ", "),
			c.ID(),
		}
		if selected != nil {
			mark := " "
			if selected[c.ID()] {
				mark = SuccessIcon
			}
			row = append([]string{mark}, row...)
		}
		rows[i] = row
	}
	return RenderTable(headers, rows)
}

// RenderTransactions renders draft transactions. Locked values carry a
// lock mark.
func RenderTransactions(txns []model.Transaction) string {
	rows := make([][]string, len(txns))
	for i, t := range txns {
		status := ""
		switch {
		case t.Processed:
			status = "processed"
		case t.IsDuplicate:
			status = "duplicate"
		}
		rows[i] = []string{
			t.ID,
			t.Date.Format("2006-01-02"),
			FormatAmount(t),
			truncate(t.Description, maxDescriptionWidth),
			fieldCell(t, model.FieldDirection),
			fieldCell(t, model.FieldCounterparty),
			fieldCell(t, model.FieldArticle),
			fieldCell(t, model.FieldAccount),
			status,
		}
	}
	return RenderTable([]string{"ID", "Date", "Amount", "Description", "Type", "Counterparty", "Article", "Account", ""}, rows)
}

// FormatAmount renders the amount signed by direction with its currency.
func FormatAmount(t model.Transaction) string {
	sign := ""
	if t.Direction == model.DirectionExpense {
		sign = "-"
	}
	return sign + t.Amount.StringFixed(2) + " " + t.EffectiveCurrency()
}

func fieldCell(t model.Transaction, f model.Field) string {
	v := t.Get(f)
	if v == "" {
		return SubtleStyle.Render("-")
	}
	if t.IsLocked(f) {
		return v + " " + LockIcon
	}
	return v
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
