package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"proofline/internal/analysis"
	"proofline/internal/config"
	"proofline/internal/doctree"
	"proofline/internal/export"
	"proofline/internal/placer"
	"proofline/internal/reconcile"
	"proofline/internal/suggestion"
)

type PlaceCmd struct {
	flags *Flags
	out   io.Writer

	// flags
	textFile        string
	suggestionsFile string
	format          string
	stylesFile      string
}

func NewPlaceCmd(flags *Flags, out io.Writer) *PlaceCmd {
	return &PlaceCmd{flags: flags, out: out}
}

func (cmd *PlaceCmd) Register(root *cli.Command) *cli.Command {
	root.Commands = append(root.Commands, &cli.Command{
		Name:      "place",
		Usage:     "Decorate a text file with a list of suggestions",
		UsageText: "proofline place --text draft.txt --suggestions suggestions.json [--format html|fragments]",
		Description: `Runs one reconciliation of the suggestions against the text and prints
the decorated result. The suggestions file accepts the analyzer response
format, either a JSON array or an object with a "suggestions" array.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "text",
				Usage:       "path to the document text",
				Required:    true,
				Destination: &cmd.textFile,
			},
			&cli.StringFlag{
				Name:        "suggestions",
				Usage:       "path to the suggestions JSON",
				Required:    true,
				Destination: &cmd.suggestionsFile,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format: html or fragments",
				Value:       "html",
				Destination: &cmd.format,
			},
			&cli.StringFlag{
				Name:        "styles",
				Usage:       "path to a YAML styles override file",
				Sources:     cli.EnvVars("PROOFLINE_STYLES_FILE"),
				Destination: &cmd.stylesFile,
			},
		},
		Action: cmd.run,
	})
	return root
}

func (cmd *PlaceCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.format != "html" && cmd.format != "fragments" {
		return fmt.Errorf("unknown format %q", cmd.format)
	}
	text, err := os.ReadFile(cmd.textFile)
	if err != nil {
		return fmt.Errorf("read text: %w", err)
	}
	raw, err := os.ReadFile(cmd.suggestionsFile)
	if err != nil {
		return fmt.Errorf("read suggestions: %w", err)
	}
	list, err := analysis.ParseSuggestions(string(raw))
	if err != nil {
		return fmt.Errorf("parse suggestions: %w", err)
	}
	styles, err := config.LoadStyles(cmd.stylesFile)
	if err != nil {
		return fmt.Errorf("load styles: %w", err)
	}

	doc, report := placeOnce(string(text), list)
	for _, s := range report.Remaining {
		log.Warn().Str("original_text", s.OriginalText).Msg("suggestion not found in text")
	}

	if cmd.format == "html" {
		_, err := fmt.Fprintln(cmd.out, export.HTML(doc, styles))
		return err
	}

	encoder := json.NewEncoder(cmd.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(fragmentsOutput(doc, report, styles))
}

// placeOnce runs reconciliation to completion on a manual scheduler.
func placeOnce(text string, list []suggestion.Suggestion) (*doctree.Document, placer.Report) {
	editor := doctree.NewEditor(text)
	store := suggestion.NewStore(suggestion.WithLogger(log.Logger))
	scheduler := reconcile.NewManual()
	loop := reconcile.New(editor, store, scheduler, reconcile.WithLogger(log.Logger))

	store.Add(list)
	scheduler.RunPending()
	return editor.Document(), loop.LastReport()
}

type fragmentJSON struct {
	Text         string `json:"text"`
	SuggestionID int64  `json:"suggestion_id,omitempty"`
	Category     string `json:"category,omitempty"`
	Class        string `json:"class,omitempty"`
}

type placeOutput struct {
	Blocks    [][]fragmentJSON `json:"blocks"`
	Remaining []string         `json:"remaining"`
	Overlaps  []string         `json:"overlaps"`
}

func fragmentsOutput(doc *doctree.Document, report placer.Report, styles doctree.Styles) placeOutput {
	out := placeOutput{
		Blocks:    make([][]fragmentJSON, 0, len(doc.Blocks)),
		Remaining: []string{},
		Overlaps:  []string{},
	}
	for _, block := range doc.Blocks {
		fragments := make([]fragmentJSON, 0, len(block.Children))
		for _, child := range block.Children {
			f := fragmentJSON{Text: child.TextContent()}
			if deco, ok := child.(*doctree.Decoration); ok {
				f.SuggestionID = int64(deco.SuggestionID())
				f.Category = string(deco.Suggestion().Category)
				f.Class = deco.Style(styles).Class
			}
			fragments = append(fragments, f)
		}
		out.Blocks = append(out.Blocks, fragments)
	}
	for _, s := range report.Remaining {
		out.Remaining = append(out.Remaining, s.OriginalText)
	}
	for _, s := range report.Overlaps {
		out.Overlaps = append(out.Overlaps, s.OriginalText)
	}
	return out
}
