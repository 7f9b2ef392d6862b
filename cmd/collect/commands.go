package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/LJTian/onconews/internal/archive"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scrapeLimit int
	exportOut   string
	snapshotOut string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch all sources, filter, store and scrape pending articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		crep, srep, err := a.pipeline.Run(cmd.Context())
		if perr := printJSON(cmd.OutOrStdout(), map[string]any{"collect": crep, "scrape": srep}); perr != nil {
			return perr
		}
		return err
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch all sources and store accepted candidates as pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.pipeline.Collect(cmd.Context())
		if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
			return perr
		}
		return err
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape full text for pending articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.pipeline.Scrape(cmd.Context(), scrapeLimit)
		if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
			return perr
		}
		return err
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.store.Statistics(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"backend":    a.store.Backend(),
			"statistics": st,
			"filter":     a.pipeline.Filter.Stats(),
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export completed articles with full text as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.store.ExportCompleted(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		if err := printJSON(out, items); err != nil {
			return err
		}
		logger.Info("export done", zap.Int("articles", len(items)), zap.String("out", exportOut))
		return nil
	},
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the news table and indexes if absent",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 打开存储时即完成建表与索引
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "database ready (%s)\n", a.store.Backend())
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [url]",
	Short: "Show the archived HTML snapshot of a scraped page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Scraping.SnapshotDir == "" {
			return errors.New("scraping.snapshot_dir is not configured")
		}
		arc, err := archive.Open(cfg.Scraping.SnapshotDir)
		if err != nil {
			return err
		}
		defer arc.Close()

		meta, err := arc.Stat(args[0])
		if err != nil {
			return err
		}
		if snapshotOut == "" {
			return printJSON(cmd.OutOrStdout(), meta)
		}

		html, err := arc.Get(args[0])
		if err != nil {
			return err
		}
		return os.WriteFile(snapshotOut, html, 0o644)
	},
}

var rescrapeCmd = &cobra.Command{
	Use:   "rescrape [url]",
	Short: "Reset an article to pending and scrape it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		url := args[0]
		if err := a.store.ResetScraping(ctx, url); err != nil {
			return err
		}

		res := a.pipeline.Scraper.Scrape(ctx, url, "")
		if res.Success {
			err = a.store.UpdateText(ctx, url, res.Text)
		} else {
			err = a.store.UpdateError(ctx, url, res.Error())
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"url":     url,
			"success": res.Success,
			"method":  res.Method,
			"chars":   len([]rune(res.Text)),
			"error":   res.Error(),
		})
	},
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "Max pending articles to scrape (default: scraping.batch_size)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Write JSON to file instead of stdout")
	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "Write the decompressed HTML to file")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
