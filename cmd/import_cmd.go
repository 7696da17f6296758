package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/scorepipe/internal/domain/model"
	"github.com/okian/scorepipe/internal/domain/types"
	"github.com/okian/scorepipe/internal/importer"
	"github.com/okian/scorepipe/internal/importer/sources"
)

// Import formats accepted by --type.
const (
	formatBatchManual = "batch-manual"
	formatSiteHTML    = "site-html"
	formatKai         = "kai"
)

type importOptions struct {
	File     string
	User     string
	Type     string
	Game     string
	Playtype string
	Service  string
	Path     string
	Token    string
	JSON     bool
}

func newImportCmd(c *cli) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import --user <id> --type <batch-manual|site-html|kai> [--file <path>]",
		Short: "Import one document or API feed for a user and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.User) == "" {
				return errors.New("--user is required")
			}
			return c.runImport(cmd.Context(), cmd.OutOrStdout(), &opts)
		},
	}
	cmd.Flags().StringVar(&opts.File, "file", "", "document to import (batch-manual JSON or a saved profile page)")
	cmd.Flags().StringVar(&opts.User, "user", "", "user the scores belong to")
	cmd.Flags().StringVar(&opts.Type, "type", formatBatchManual, "import format: batch-manual, site-html or kai")
	cmd.Flags().StringVar(&opts.Game, "game", string(types.GameIIDX), "game for site-html imports")
	cmd.Flags().StringVar(&opts.Playtype, "playtype", string(types.PlaytypeSP), "playtype for site-html imports")
	cmd.Flags().StringVar(&opts.Service, "service", "site", "service name recorded on site-html scores")
	cmd.Flags().StringVar(&opts.Path, "path", "", "partner API path for kai imports")
	cmd.Flags().StringVar(&opts.Token, "token", "", "partner API bearer token for kai imports")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the full import result as JSON")
	return cmd
}

func (c *cli) runImport(ctx context.Context, out io.Writer, opts *importOptions) error {
	svc, err := c.start(ctx)
	if err != nil {
		return err
	}
	defer c.stop(ctx, svc)

	var res *importer.Result
	if opts.Type == formatKai {
		if opts.Path == "" || opts.Token == "" {
			return errors.New("--path and --token are required for kai imports")
		}
		res, err = svc.ImportKai(ctx, opts.User, opts.Path, sources.StaticToken(opts.Token))
	} else {
		if opts.File == "" {
			return fmt.Errorf("--file is required for %s imports", opts.Type)
		}
		f, ferr := os.Open(opts.File)
		if ferr != nil {
			return fmt.Errorf("open %s: %w", opts.File, ferr)
		}
		defer func() { _ = f.Close() }()

		req, rerr := buildRequest(opts, f)
		if rerr != nil {
			return rerr
		}
		res, err = svc.Import(ctx, req)
	}
	if res != nil {
		if perr := printResult(out, res, opts.JSON); perr != nil {
			return perr
		}
	}
	return err
}

// buildRequest parses a document into an import request for opts.User.
func buildRequest(opts *importOptions, r io.Reader) (importer.ImportRequest, error) {
	switch opts.Type {
	case formatBatchManual:
		doc, err := sources.ParseBatchManual(r)
		if err != nil {
			return importer.ImportRequest{}, err
		}
		return importer.ImportRequest{
			UserID:     opts.User,
			ImportType: types.ImportBatchManual,
			Records:    doc.Records(),
			Context:    doc.Context(),
		}, nil
	case formatSiteHTML:
		doc, err := sources.ParseSiteHTML(r)
		if err != nil {
			return importer.ImportRequest{}, err
		}
		return importer.ImportRequest{
			UserID:     opts.User,
			ImportType: types.ImportSiteHTML,
			Records:    doc.Records(),
			Context: model.SourceContext{
				Service:  opts.Service,
				Game:     types.Game(opts.Game),
				Playtype: types.Playtype(opts.Playtype),
			},
		}, nil
	default:
		return importer.ImportRequest{}, fmt.Errorf("unknown import type %q", opts.Type)
	}
}

func printResult(out io.Writer, res *importer.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.ImportResult)
	}
	if _, err := fmt.Fprintf(out, "%s: %s\n", res.ImportID, res.Summary()); err != nil {
		return err
	}
	for _, e := range res.Errors {
		if _, err := fmt.Fprintf(out, "  %s: %s\n", e.Type, e.Message); err != nil {
			return err
		}
	}
	return nil
}
