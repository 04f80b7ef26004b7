package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/placerank/internal/config"
	"github.com/nao1215/placerank/internal/database"
	"github.com/nao1215/placerank/internal/model"
	"github.com/nao1215/placerank/internal/report"
)

// NewRanksCmd creates the ranks command.
func NewRanksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ranks <keyword>",
		Short: "Print the latest stored ranking of a keyword",
		Long: `Ranks prints the places of the latest crawl of a keyword in rank order.
The keyword is given as text or, with --id, as its numeric id.

Examples:
  placerank ranks "강남 맛집"
  placerank ranks --id 42 --json
  placerank ranks --markdown -o reports/gangnam.md "강남 맛집"`,
		Args: cobra.ExactArgs(1),
		RunE: runRanksCmd,
	}

	cmd.Flags().Bool("id", false, "Treat the argument as a keyword id")
	addReportFlags(cmd)

	return cmd
}

func runRanksCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := readReportFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	byID, err := cmd.Flags().GetBool("id")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg, os.Stderr)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return printRanking(ctx, cfg, store, args[0], byID, cmd.OutOrStdout())
}

// rankingStore is what printRanking reads.
type rankingStore interface {
	database.KeywordStore
	LatestRun(ctx context.Context, keywordID int64) ([]model.RankRow, error)
}

func printRanking(ctx context.Context, cfg *config.Config, store rankingStore, arg string, byID bool, stdout io.Writer) error {
	kw, err := lookupKeyword(ctx, store, arg, byID)
	if err != nil {
		return err
	}
	rows, err := store.LatestRun(ctx, kw.ID)
	if err != nil {
		return fmt.Errorf("failed to load ranking of %q: %w", kw.Text, err)
	}

	w, closeReport, err := openReport(cfg, stdout)
	if err != nil {
		return err
	}
	_, werr := w.WriteRanking(&report.Ranking{Keyword: kw, Rows: rows})
	return errors.Join(werr, closeReport())
}

func lookupKeyword(ctx context.Context, store database.KeywordStore, arg string, byID bool) (model.Keyword, error) {
	if byID {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return model.Keyword{}, fmt.Errorf("invalid keyword id %q: %w", arg, err)
		}
		return store.GetKeyword(ctx, id)
	}
	kw, err := store.FindKeyword(ctx, arg)
	if errors.Is(err, database.ErrNotFound) {
		return model.Keyword{}, fmt.Errorf("keyword %q is not tracked (add it with \"placerank enqueue\"): %w", arg, err)
	}
	return kw, err
}
