package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ricesearch/support-context/internal/chatcontext"
	"github.com/ricesearch/support-context/internal/search"
)

// runWithApp builds the services for a one-shot command, imports --corpus
// when given and runs fn. Logs go to stderr so output stays parseable.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := loadConfig(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if corpus, _ := cmd.Flags().GetString("corpus"); corpus != "" {
		cfg.Corpus.Path = corpus
	}

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Corpus.Path != "" {
		if _, err := a.importCorpus(ctx, cfg.Corpus.Path); err != nil {
			_ = a.close()
			return fmt.Errorf("failed to import corpus: %w", err)
		}
	}

	runErr := fn(ctx, a)
	if err := a.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// printOutput writes v as indented JSON when --format json is set, and
// through text otherwise.
func printOutput(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(out)
	return nil
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search published FAQs and articles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			sortBy, _ := cmd.Flags().GetString("sort")
			order, _ := cmd.Flags().GetString("order")
			highlight, _ := cmd.Flags().GetBool("highlight")
			categories, _ := cmd.Flags().GetStringSlice("category")
			tags, _ := cmd.Flags().GetStringSlice("tag")

			req := search.Request{
				Query:   strings.Join(args, " "),
				Filters: search.Filters{Categories: categories, Tags: tags},
				Options: search.Options{
					Limit:     limit,
					Offset:    offset,
					SortBy:    search.SortBy(sortBy),
					SortOrder: search.SortOrder(strings.ToUpper(order)),
					Highlight: highlight,
				},
			}

			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				resp, err := a.search.Execute(ctx, req)
				if err != nil {
					return err
				}
				return printOutput(cmd, resp, func(w io.Writer) { printSearch(w, resp) })
			})
		},
	}

	cmd.Flags().String("corpus", "", "corpus file or directory to import first")
	cmd.Flags().IntP("limit", "n", 0, "results per page")
	cmd.Flags().Int("offset", 0, "results to skip")
	cmd.Flags().String("sort", "relevance", "sort by (relevance, confidence, popularity, date)")
	cmd.Flags().String("order", "desc", "sort order (asc, desc)")
	cmd.Flags().Bool("highlight", false, "mark query matches in snippets")
	cmd.Flags().StringSlice("category", nil, "restrict to categories")
	cmd.Flags().StringSlice("tag", nil, "restrict to tags")

	return cmd
}

func printSearch(w io.Writer, resp *search.Response) {
	fmt.Fprintf(w, "%d results (%.1fms)\n", resp.Total, resp.ProcessingTime)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%2d. [%s] %s  (%.1f)\n", i+1, r.Type, r.Title, r.RelevanceScore)
		if r.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", r.Snippet)
		}
	}
	if len(resp.Suggestions) > 0 {
		fmt.Fprintf(w, "Suggestions: %s\n", strings.Join(resp.Suggestions, ", "))
	}
	for _, f := range resp.RelatedFAQs {
		fmt.Fprintf(w, "Related: %s\n", f.Question)
	}
}

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Build ranked chat context for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			maxSources, _ := cmd.Flags().GetInt("max-sources")

			req := chatcontext.Request{
				Query:     strings.Join(args, " "),
				SessionID: session,
				Options:   chatcontext.Options{MaxSources: maxSources},
			}
			if cmd.Flags().Changed("min-relevance") {
				v, _ := cmd.Flags().GetFloat64("min-relevance")
				req.Options.MinRelevanceScore = &v
			}

			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.engine.BuildContext(ctx, req)
				if err != nil {
					return err
				}
				return printOutput(cmd, res, func(w io.Writer) { printContext(w, res) })
			})
		},
	}

	cmd.Flags().String("corpus", "", "corpus file or directory to import first")
	cmd.Flags().String("session", "", "chat session ID for document sources")
	cmd.Flags().Int("max-sources", 0, "maximum sources (0 = configured default)")
	cmd.Flags().Float64("min-relevance", 0, "minimum relevance score (0..1)")

	return cmd
}

func printContext(w io.Writer, res *chatcontext.Result) {
	fmt.Fprintf(w, "%d sources, total relevance %.2f (%.1fms)\n",
		len(res.Sources), res.TotalRelevanceScore, res.ProcessingTime)
	for i, s := range res.Sources {
		fmt.Fprintf(w, "[%d] %s %s  (%.2f)\n", i+1, s.Type, s.Title, s.RelevanceScore)
	}
}

func answerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "answer <question>",
		Short: "Answer a question from built context using the configured providers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			question := strings.Join(args, " ")

			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				ans, err := a.assistant.Answer(ctx, session, question)
				if err != nil {
					return err
				}
				return printOutput(cmd, ans, func(w io.Writer) {
					fmt.Fprintln(w, ans.Text)
					fmt.Fprintln(w)
					for i, s := range ans.Sources {
						fmt.Fprintf(w, "[%d] %s\n", i+1, s.Title)
					}
					fmt.Fprintf(w, "(%s/%s)\n", ans.Provider, ans.Model)
				})
			})
		},
	}

	cmd.Flags().String("corpus", "", "corpus file or directory to import first")
	cmd.Flags().String("session", "", "chat session ID")

	return cmd
}
