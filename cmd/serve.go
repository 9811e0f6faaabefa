package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkgate/inkgate/internal/approval"
	"github.com/inkgate/inkgate/internal/config"
	"github.com/inkgate/inkgate/internal/gate"
	"github.com/inkgate/inkgate/internal/llm"
	"github.com/inkgate/inkgate/internal/logging"
	"github.com/inkgate/inkgate/internal/orchestrator"
	"github.com/inkgate/inkgate/internal/policy"
	"github.com/inkgate/inkgate/internal/server"
	"github.com/inkgate/inkgate/internal/store"
	"github.com/inkgate/inkgate/internal/tool"
)

var (
	serveListen    string
	serveWorkspace string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the HTTP gateway. Clients stream exchanges over
POST /api/chat and resolve suspended tool calls over
POST /api/approvals/<ticket-id>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if serveListen != "" {
			cfg.Listen = serveListen
		}
		if serveWorkspace != "" {
			cfg.Workspace = serveWorkspace
		}

		st, err := store.Open(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		defer st.Close()

		g, err := gate.New(cfg.Workspace, gate.LoadIgnorePatterns(cfg.Workspace))
		if err != nil {
			return fmt.Errorf("failed to initialize security gate: %w", err)
		}

		rules, err := policy.Load(cfg.RulesPath())
		if err != nil {
			return fmt.Errorf("failed to load permission rules: %w", err)
		}
		stopWatch, err := rules.Watch()
		if err != nil {
			logging.Warn("serve: rules file watch unavailable: %v", err)
		} else {
			defer stopWatch()
		}

		registry := tool.NewRegistry()
		for _, t := range []tool.Tool{
			tool.ReadFile{},
			tool.WriteFile{},
			tool.Grep{PathOK: func(p string) bool {
				_, err := g.ValidatePath(p)
				return err == nil
			}},
			tool.Bash{WorkDir: g.WorkspaceRoot()},
			tool.Clock{},
		} {
			if err := registry.Register(t); err != nil {
				return fmt.Errorf("failed to register tool: %w", err)
			}
		}

		coordinator := approval.NewCoordinator()
		orch := &orchestrator.Orchestrator{
			Client:       llm.NewOpenAIClient(cfg.APIURL, cfg.APIKey),
			Model:        cfg.Model,
			Registry:     registry,
			Gate:         g,
			Policy:       rules,
			Approvals:    coordinator,
			Store:        st,
			SystemPrompt: cfg.SystemPrompt,
		}

		srv := &http.Server{
			Addr: cfg.Listen,
			Handler: (&server.Server{
				Orch:      orch,
				Store:     st,
				Approvals: coordinator,
				Policy:    rules,
			}).Handler(),
		}

		fmt.Println(headerStyle.Render("inkgate " + version))
		fmt.Println(dateStyle.Render("listening on " + cfg.Listen))
		fmt.Println(dateStyle.Render("workspace " + g.WorkspaceRoot()))

		errCh := make(chan error, 1)
		go func() {
			logging.Info("serve: listening on %s (workspace %s, model %s)",
				cfg.Listen, g.WorkspaceRoot(), cfg.Model)
			errCh <- srv.ListenAndServe()
		}()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-stop:
			logging.Info("serve: shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Bind address (default from config)")
	serveCmd.Flags().StringVar(&serveWorkspace, "workspace", "", "Workspace root tools may access (default current directory)")
}
