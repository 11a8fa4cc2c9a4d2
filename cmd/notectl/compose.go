package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"artnote-server/internal/composer"
	"artnote-server/internal/config"
	"artnote-server/internal/generation"
	"artnote-server/internal/models"
)

type composeFlags struct {
	name     string
	age      int
	progress string
	memo     string
	seed     int64

	title    string
	guidance string

	subject   string
	materials []string
	offline   bool
}

func newComposeCmd() *cobra.Command {
	f := &composeFlags{}
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Собрать сообщение без сеанса и хранилищ",
	}
	cmd.PersistentFlags().StringVar(&f.name, "name", "", "имя ученика")
	cmd.PersistentFlags().IntVar(&f.age, "age", 0, "возраст ученика")
	cmd.PersistentFlags().StringVar(&f.progress, "progress", string(models.ProgressOngoing), "started, ongoing или completed")
	cmd.PersistentFlags().StringVar(&f.memo, "memo", "", "заметка учителя")
	cmd.PersistentFlags().Int64Var(&f.seed, "seed", 0, "зерно выбора фраз, 0 - случайное")

	templateCmd := &cobra.Command{
		Use:   "template",
		Short: "Шаблонное сообщение по теме учебной программы",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComposeTemplate(cmd, f)
		},
	}
	templateCmd.Flags().StringVar(&f.title, "title", "", "название темы")
	templateCmd.Flags().StringVar(&f.guidance, "guidance", "", "методическое описание темы")
	_ = templateCmd.MarkFlagRequired("title")

	freeformCmd := &cobra.Command{
		Use:   "freeform",
		Short: "Свободное сообщение через генератор",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComposeFreeForm(cmd, f)
		},
	}
	freeformCmd.Flags().StringVar(&f.subject, "subject", "", "тема работы")
	freeformCmd.Flags().StringSliceVar(&f.materials, "materials", nil, "материалы через запятую")
	freeformCmd.Flags().BoolVar(&f.offline, "offline", false, "не обращаться к генератору")
	_ = freeformCmd.MarkFlagRequired("subject")

	cmd.AddCommand(templateCmd, freeformCmd)
	return cmd
}

func newEngine(f *composeFlags, gen generation.Generator, cfg composer.Config) (*composer.Engine, error) {
	tables, err := composer.DefaultTables()
	if err != nil {
		return nil, err
	}
	rnd := composer.NewRandomSource()
	if f.seed != 0 {
		rnd = composer.NewSeededSource(f.seed)
	}
	return composer.NewEngine(tables, rnd, gen, cfg, serviceLogger), nil
}

func runComposeTemplate(cmd *cobra.Command, f *composeFlags) error {
	progress, err := models.ParseProgress(f.progress)
	if err != nil {
		return err
	}
	engine, err := newEngine(f, nil, composer.Config{})
	if err != nil {
		return err
	}
	text, err := engine.ComposeTemplate(composer.TemplateInput{
		Source: models.TemplateSource{
			TopicID:  uuid.New(),
			Title:    f.title,
			Guidance: f.guidance,
		},
		Name:     f.name,
		Progress: progress,
		Memo:     f.memo,
		Young:    composer.IsYoung(f.age),
	})
	if err != nil {
		return err
	}
	log.Debug().Str("title", f.title).Str("progress", string(progress)).Msg("template message composed")
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

func runComposeFreeForm(cmd *cobra.Command, f *composeFlags) error {
	progress, err := models.ParseProgress(f.progress)
	if err != nil {
		return err
	}
	if strings.TrimSpace(f.subject) == "" {
		return fmt.Errorf("%w: subject is required", models.ErrValidation)
	}
	in := composer.FreeFormInput{
		Name:      f.name,
		Age:       f.age,
		Subject:   f.subject,
		Materials: f.materials,
		Progress:  progress,
		Memo:      f.memo,
	}

	if f.offline {
		engine, err := newEngine(f, nil, composer.Config{})
		if err != nil {
			return err
		}
		return printComposition(cmd, engine.Fallback(in))
	}

	cfg, err := config.LoadGenerationConfig()
	if err != nil {
		return err
	}
	gen, err := generation.New(cfg, serviceLogger)
	if err != nil {
		return err
	}
	engine, err := newEngine(f, gen, composer.Config{GenerationTimeout: cfg.GenerationTimeout})
	if err != nil {
		return err
	}
	log.Info().Str("backend", cfg.GenerationBackend).Msg("requesting generator")
	return printComposition(cmd, engine.ComposeFreeForm(cmd.Context(), in))
}

func printComposition(cmd *cobra.Command, c composer.Composition) error {
	ev := log.Info().Str("source", string(c.Source))
	if c.Reason != "" {
		ev = ev.Str("reason", c.Reason)
	}
	ev.Msg("free-form message composed")
	_, err := fmt.Fprintln(cmd.OutOrStdout(), c.Text)
	return err
}
