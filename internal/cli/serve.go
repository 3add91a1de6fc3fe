package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmueller/voxscribe/internal/config"
	"github.com/fmueller/voxscribe/internal/transcript"
	"github.com/fmueller/voxscribe/internal/web"
)

func newServeCmd(app *appState, defaults config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.serve(cmd.Context())
		},
	}
	bindServerFlags(cmd.Flags(), defaults)
	return cmd
}

func (a *appState) serve(ctx context.Context) error {
	svc, err := a.newService(false)
	if err != nil {
		return err
	}

	store := transcript.NewStore(transcript.StoreOptions{
		TTL:        a.cfg.Transcripts.TTL,
		MaxEntries: a.cfg.Transcripts.MaxEntries,
	})
	defer store.Close()

	srv, err := web.New(web.Options{
		Host:            a.cfg.Server.Host,
		Port:            a.cfg.Server.Port,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  a.cfg.Server.MaxUploadBytes(),
		Service:         svc,
		Store:           store,
		Logger:          a.log(),
	})
	if err != nil {
		return err
	}

	a.log().Info("starting voxscribe",
		zap.String("addr", srv.Addr()),
		zap.String("engine", svc.EngineName()),
		zap.String("model", svc.DefaultModel()),
		zap.Int64("max_concurrent", a.cfg.Whisper.MaxConcurrent),
	)
	return srv.Run(ctx)
}
