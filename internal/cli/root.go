// Package cli implements the segments command: segment CRUD against a
// segment repository from the terminal.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ignite/segment-rules/internal/cache"
	"github.com/ignite/segment-rules/internal/config"
	"github.com/ignite/segment-rules/internal/pkg/apiauth"
	"github.com/ignite/segment-rules/internal/pkg/logger"
	"github.com/ignite/segment-rules/internal/repository/httpapi"
	"github.com/ignite/segment-rules/internal/service/segment"
)

// Output formats accepted by --output.
const (
	OutputAuto  = "auto"
	OutputTable = "table"
	OutputJSON  = "json"
)

type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	apiURL     string
	tenantID   int64
	output     string
	verbose    bool

	cfg     *config.Config
	svc     *segment.Service
	cleanup []func()
}

// NewRootCommand builds the segments command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "segments",
		Short:         "Manage audience segments in the segment repository",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			for _, fn := range a.cleanup {
				fn()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "path to config.yaml")
	pf.StringVar(&a.apiURL, "api-url", "", "segment repository base URL (overrides config)")
	pf.Int64Var(&a.tenantID, "tenant", 0, "tenant id (overrides config)")
	pf.StringVarP(&a.output, "output", "o", OutputAuto, "output format: auto, table or json")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		a.fieldsCommand(),
		a.validateCommand(),
		a.listCommand(),
		a.showCommand(),
		a.createCommand(),
		a.updateCommand(),
		a.deleteCommand(),
		a.previewCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	switch a.output {
	case OutputAuto, OutputTable, OutputJSON:
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}

	cfg, err := config.LoadFromEnv(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL
	}
	if a.tenantID != 0 {
		if a.tenantID < 0 {
			return errors.New("--tenant must be positive")
		}
		cfg.API.TenantID = a.tenantID
	}
	a.cfg = cfg

	logger.SetOutput(a.errOut)
	logger.SetRedactPII(cfg.Log.ShouldRedactPII())
	if a.verbose {
		logger.SetLevel(logger.DEBUG)
	} else {
		logger.SetLevel(logger.WARN)
	}
	return nil
}

// service lazily connects to the repository; offline commands never call it.
func (a *app) service(cmd *cobra.Command) (*segment.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	cfg := a.cfg

	var tokens *apiauth.TokenSource
	if cfg.API.AccessToken != "" || cfg.API.RefreshToken != "" {
		tokens = apiauth.NewTokenSource(cfg.API.BaseURL, cfg.API.AccessToken, cfg.API.RefreshToken)
		tokens.OnRefresh = func(apiauth.TokenPair) {
			logger.Info("access token refreshed; update API_ACCESS_TOKEN to reuse it")
		}
	}
	client := httpapi.New(httpapi.Config{
		BaseURL:    cfg.API.BaseURL,
		TenantID:   cfg.API.TenantID,
		Tokens:     tokens,
		Timeout:    cfg.API.Timeout(),
		MaxRetries: cfg.API.Retries(),
	})

	opts := []segment.Option{segment.WithNotifier(segment.NotifierFunc(a.notify))}
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisFromURL(cmd.Context(), cfg.Cache.RedisURL, cfg.Cache.TTL())
		if err != nil {
			logger.Warn("segment cache unavailable, reading through", "error", err)
		} else {
			a.cleanup = append(a.cleanup, func() { rc.Close() })
			opts = append(opts, segment.WithCache(rc))
		}
	}

	a.svc = segment.NewService(client, cfg.API.TenantID, opts...)
	return a.svc, nil
}

func (a *app) notify(n segment.Notice) {
	mark := "✓"
	if n.Kind == segment.NoticeFailure {
		mark = "✗"
	}
	fmt.Fprintf(a.errOut, "%s %s\n", mark, n.Message)
}

func (a *app) jsonOutput() bool {
	switch a.output {
	case OutputJSON:
		return true
	case OutputTable:
		return false
	}
	f, ok := a.out.(*os.File)
	return !ok || !term.IsTerminal(int(f.Fd()))
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid segment id %q", arg)
	}
	return id, nil
}

// Describe renders err for the terminal, listing per-field validation
// problems one per line.
func Describe(err error) string {
	var ve *segment.ValidationError
	if !errors.As(err, &ve) {
		return "Error: " + err.Error()
	}
	var b strings.Builder
	msg := ve.Message
	if msg == "" {
		msg = "validation failed"
	}
	b.WriteString("Error: " + msg)
	keys := make([]string, 0, len(ve.Fields))
	for k := range ve.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %s", k, ve.Fields[k])
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
