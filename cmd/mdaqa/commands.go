package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huihuang/mdaqa/infrastructure/corpus"
	"github.com/huihuang/mdaqa/internal/domain"
	"github.com/huihuang/mdaqa/internal/pipeline"
)

func newGenerateCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate candidate questions for every community",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			runner, audit, err := a.buildRunner(resume)
			if err != nil {
				return err
			}
			defer audit.Close()

			communities, err := corpus.LoadCommunities(a.cfg.Data.Communities)
			if err != nil {
				return err
			}

			generated, err := runner.GenerateAll(cmd.Context(), communities)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d candidates from %d communities\n",
				len(generated), len(communities))
			return nil
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "skip communities already in the generation artifact")
	return cmd
}

func newEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Judge previously generated candidates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			runner, audit, err := a.buildRunner(false)
			if err != nil {
				return err
			}
			defer audit.Close()

			artifacts, err := pipeline.LoadGenerated(a.cfg.Data.OutputDir)
			if err != nil {
				return err
			}
			if len(artifacts) == 0 {
				return fmt.Errorf("no generated candidates in %s; run generate first", a.cfg.Data.OutputDir)
			}

			generated := make([]pipeline.GenerationOutcome, len(artifacts))
			for i, artifact := range artifacts {
				generated[i] = pipeline.GenerationOutcome{
					CommunityID: artifact.CommunityID,
					Candidate:   artifact.Candidate,
				}
			}

			results, err := runner.EvaluateAll(cmd.Context(), generated)
			if err != nil {
				return err
			}
			accepted := 0
			for _, r := range results {
				if r.Accepted {
					accepted++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Evaluated %d candidates, accepted %d\n",
				len(results), accepted)
			return nil
		},
	}
}

func newAssembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assemble",
		Short: "Assemble the final dataset from evaluated candidates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			runner, audit, err := a.buildRunner(false)
			if err != nil {
				return err
			}
			defer audit.Close()

			artifacts, err := pipeline.LoadEvaluated(a.cfg.Data.OutputDir)
			if err != nil {
				return err
			}
			if len(artifacts) == 0 {
				return fmt.Errorf("no evaluated candidates in %s; run evaluate first", a.cfg.Data.OutputDir)
			}

			results := make([]domain.EvaluationResult, len(artifacts))
			for i, artifact := range artifacts {
				results[i] = artifact.Result
			}

			entries, err := runner.Assemble(results)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dataset written with %d entries\n", len(entries))
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var resume bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run generation, evaluation, and assembly end to end",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			runner, audit, err := a.buildRunner(resume)
			if err != nil {
				return err
			}
			defer audit.Close()

			communities, err := corpus.LoadCommunities(a.cfg.Data.Communities)
			if err != nil {
				return err
			}

			entries, err := runner.Run(cmd.Context(), communities)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dataset written with %d entries from %d communities\n",
				len(entries), len(communities))
			return nil
		},
	}
	cmd.Flags().BoolVar(&resume, "resume", false, "skip communities already in the generation artifact")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <paper-dir>",
		Short: "Import a directory of paper text files into the SQLite corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Data.CorpusDB == "" {
				return fmt.Errorf("data.corpus_db must be set to import")
			}
			store, ok := a.store.(*corpus.SQLiteStore)
			if !ok {
				return fmt.Errorf("corpus store is not SQLite backed")
			}

			imported, err := store.ImportDir(cmd.Context(), args[0],
				a.cfg.Processing.MinPaperKB, a.cfg.Processing.MaxPaperKB)
			if err != nil {
				return err
			}
			a.logger.Info("corpus import complete",
				zap.String("source", args[0]),
				zap.Int("papers", imported))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d papers into %s\n",
				imported, a.cfg.Data.CorpusDB)
			return nil
		},
	}
}
