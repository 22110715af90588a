package cmd

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/korjavin/studybot/bot"
	"github.com/korjavin/studybot/database"
	"github.com/korjavin/studybot/experiment"
	"github.com/korjavin/studybot/platform"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if err := a.cfg.RequireBotToken(); err != nil {
		return err
	}

	variant, err := experiment.VariantByName(a.cfg.Experiment)
	if err != nil {
		return err
	}
	doc, err := experiment.LoadDocument(a.cfg.StimuliPath, variant)
	if err != nil {
		return err
	}
	a.log.Infow("loaded stimulus document",
		"path", a.cfg.StimuliPath,
		"experiment", variant.Name,
		"stimuli", len(doc.Stim),
	)

	db, err := database.New(a.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	var notifier database.Notifier
	if a.cfg.PlatformURL != "" {
		notifier = platform.NewClient(a.cfg.PlatformURL, a.cfg.PlatformToken, a.log)
	}

	api, err := tgbotapi.NewBotAPI(a.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot API: %w", err)
	}
	api.Debug = a.cfg.Debug

	b, err := bot.New(api, bot.Options{
		DB:            db,
		Recorder:      database.NewSessionLog(db, notifier),
		Document:      doc,
		Variant:       variant,
		AssetsDir:     a.cfg.AssetsDir,
		SubmitTimeout: a.cfg.SubmitTimeout,
		IdleTimeout:   a.cfg.SessionTTL,
		Logger:        a.log,
	})
	if err != nil {
		return err
	}

	a.log.Infow("bot initialized", "account", api.Self.UserName)
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("bot stopped")
	return nil
}
