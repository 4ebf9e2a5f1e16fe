package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/capitalize-ai/supportdesk/internal/app"
	"github.com/capitalize-ai/supportdesk/internal/config"
	"github.com/capitalize-ai/supportdesk/internal/middleware"
	"github.com/capitalize-ai/supportdesk/internal/model"
	"github.com/capitalize-ai/supportdesk/pkg/logger"
)

// newApp builds the backends for commands that need them.
var newApp = func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app.App, error) {
	return app.New(ctx, cfg, log)
}

type runtime struct {
	cfg *config.Config
	log *logger.Logger
	app *app.App
}

func run(ctx context.Context, args []string, w io.Writer) error {
	var (
		workspace string
		verbose   bool
		rt        runtime
	)

	cmd := &cli.Command{
		Name:   "kbctl",
		Usage:  "Manage support knowledge bases",
		Writer: w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "workspace",
				Aliases:     []string{"w"},
				Usage:       "Workspace ID",
				Sources:     cli.EnvVars("SUPPORTDESK_WORKSPACE"),
				Destination: &workspace,
			},
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "Log to stderr",
				Destination: &verbose,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load()
			if err != nil {
				return ctx, err
			}
			rt.cfg = cfg

			rt.log = logger.NewNop()
			if verbose {
				if rt.log, err = logger.NewDevelopment(); err != nil {
					return ctx, goerr.Wrap(err, "failed to create logger")
				}
			}
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if rt.app != nil {
				rt.app.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdIngest(&rt, &workspace),
			cmdDelete(&rt, &workspace),
			cmdList(&rt, &workspace),
			cmdSearch(&rt, &workspace),
			cmdToken(&rt, &workspace),
		},
	}

	return cmd.Run(ctx, args)
}

// backend connects on first use.
func (rt *runtime) backend(ctx context.Context) (*app.App, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	a, err := newApp(ctx, rt.cfg, rt.log)
	if err != nil {
		return nil, err
	}
	if !a.Persistent {
		rt.log.Warn("no DATABASE_URL set, changes will not outlive this command")
	}
	rt.app = a
	return a, nil
}

func requireWorkspace(workspace *string) error {
	if *workspace == "" {
		return goerr.New("workspace is required (--workspace or SUPPORTDESK_WORKSPACE)")
	}
	return nil
}

func out(c *cli.Command) io.Writer {
	return c.Root().Writer
}

func cmdIngest(rt *runtime, workspace *string) *cli.Command {
	var title string
	var question, answer string

	printResult := func(c *cli.Command, name string, resp *model.IngestResponse) {
		fmt.Fprintf(out(c), "%s: %d chunks\n", name, resp.Chunks)
	}

	return &cli.Command{
		Name:  "ingest",
		Usage: "Add a document to a workspace knowledge base",
		Commands: []*cli.Command{
			{
				Name:      "text",
				Usage:     "Ingest a plain text file",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "title",
						Usage:       "Document title (defaults to the file name)",
						Destination: &title,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := requireWorkspace(workspace); err != nil {
						return err
					}
					path := c.Args().First()
					if path == "" {
						return goerr.New("a file is required")
					}
					content, err := os.ReadFile(path)
					if err != nil {
						return goerr.Wrap(err, "failed to read file", goerr.V("path", path))
					}
					if title == "" {
						title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
					}

					a, err := rt.backend(ctx)
					if err != nil {
						return err
					}
					resp, err := a.KnowledgeBase.AddText(ctx, *workspace, &model.AddTextRequest{Title: title, Content: string(content)})
					if err != nil {
						return err
					}
					printResult(c, title, resp)
					return nil
				},
			},
			{
				Name:  "faq",
				Usage: "Ingest a question and answer pair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "question", Aliases: []string{"q"}, Required: true, Destination: &question},
					&cli.StringFlag{Name: "answer", Aliases: []string{"a"}, Required: true, Destination: &answer},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := requireWorkspace(workspace); err != nil {
						return err
					}
					a, err := rt.backend(ctx)
					if err != nil {
						return err
					}
					resp, err := a.KnowledgeBase.AddFAQ(ctx, *workspace, &model.AddFAQRequest{Question: question, Answer: answer})
					if err != nil {
						return err
					}
					printResult(c, question, resp)
					return nil
				},
			},
			{
				Name:      "pdf",
				Usage:     "Ingest text extracted from a PDF",
				ArgsUsage: "TEXT_FILE PDF_NAME",
				Action: func(ctx context.Context, c *cli.Command) error {
					if err := requireWorkspace(workspace); err != nil {
						return err
					}
					if c.NArg() != 2 {
						return goerr.New("expected the extracted text file and the PDF name")
					}
					path, name := c.Args().Get(0), c.Args().Get(1)

					text, err := os.ReadFile(path)
					if err != nil {
						return goerr.Wrap(err, "failed to read file", goerr.V("path", path))
					}

					a, err := rt.backend(ctx)
					if err != nil {
						return err
					}
					resp, err := a.KnowledgeBase.AddPDF(ctx, *workspace, &model.AddPDFRequest{
						FileName: name,
						FileSize: int64(len(text)),
						Text:     string(text),
					})
					if err != nil {
						return err
					}
					printResult(c, name, resp)
					return nil
				},
			},
		},
	}
}

func cmdDelete(rt *runtime, workspace *string) *cli.Command {
	var kind string

	return &cli.Command{
		Name:      "delete",
		Usage:     "Remove a document from a workspace knowledge base",
		ArgsUsage: "SOURCE_NAME",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "type",
				Usage:       "Source type (text, faq or pdf)",
				Value:       string(model.SourceText),
				Destination: &kind,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := requireWorkspace(workspace); err != nil {
				return err
			}
			name := c.Args().First()
			if name == "" {
				return goerr.New("a source name is required")
			}

			a, err := rt.backend(ctx)
			if err != nil {
				return err
			}
			n, err := a.KnowledgeBase.Delete(ctx, *workspace, &model.DeleteSourceRequest{
				SourceName: name,
				SourceType: model.SourceKind(kind),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out(c), "deleted %d chunks\n", n)
			return nil
		},
	}
}

func cmdList(rt *runtime, workspace *string) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the documents of a workspace knowledge base",
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := requireWorkspace(workspace); err != nil {
				return err
			}
			a, err := rt.backend(ctx)
			if err != nil {
				return err
			}
			kb, err := a.KnowledgeBase.List(ctx, *workspace)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(out(c), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tNAME\tCHUNKS\tCHARACTERS\tUPDATED")
			for _, src := range kb.Sources {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
					src.SourceKind, src.SourceName, src.ChunkCount, src.Characters, src.UpdatedAt.Format(time.RFC3339))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out(c), "%d sources, %d chunks\n", kb.Stats.TotalSources, kb.Stats.TotalChunks)
			return nil
		},
	}
}

func cmdSearch(rt *runtime, workspace *string) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Show what the retriever finds for a question",
		ArgsUsage: "QUERY",
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := requireWorkspace(workspace); err != nil {
				return err
			}
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return goerr.New("a query is required")
			}

			a, err := rt.backend(ctx)
			if err != nil {
				return err
			}
			retrieval, err := a.KnowledgeBase.Search(ctx, *workspace, query)
			if err != nil {
				return err
			}

			w := out(c)
			fmt.Fprintf(w, "confidence %.3f\n", retrieval.Confidence)
			for _, r := range retrieval.Raw {
				fmt.Fprintf(w, "%.3f  %s/%s\n", r.Similarity, r.Chunk.SourceKind, r.Chunk.SourceName)
			}
			return nil
		},
	}
}

func cmdToken(rt *runtime, workspace *string) *cli.Command {
	var user string
	var ttl time.Duration
	var scopes []string

	return &cli.Command{
		Name:  "token",
		Usage: "Sign a dashboard token for a workspace",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Value: "kbctl", Usage: "Token subject", Destination: &user},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour, Usage: "Token lifetime", Destination: &ttl},
			&cli.StringSliceFlag{Name: "scope", Usage: "Granted scope, repeatable", Destination: &scopes},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := requireWorkspace(workspace); err != nil {
				return err
			}
			token, err := middleware.IssueToken(rt.cfg.JWTSecret, user, *workspace, ttl, scopes...)
			if err != nil {
				return goerr.Wrap(err, "failed to sign token")
			}
			fmt.Fprintln(out(c), token)
			return nil
		},
	}
}
