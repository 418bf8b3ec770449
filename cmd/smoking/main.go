package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yu-fu/smokesearch/internal/api"
	"github.com/yu-fu/smokesearch/internal/observability"
	"github.com/yu-fu/smokesearch/internal/server"
	"github.com/yu-fu/smokesearch/internal/tiles"
)

// Options defines all CLI flags and env vars for the server.
// Flags: --host, --port, --data-dir, --store, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_STORE, ...
type Options struct {
	Host            string `doc:"Host to bind to" default:"0.0.0.0"`
	Port            int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir         string `doc:"Directory for the database and user files" default:".data"`
	WebDir          string `doc:"Optional web/ directory overriding the embedded templates and static files"`
	Env             string `doc:"Environment (development prints console logs)" default:"production"`
	Store           string `doc:"Record store: duckdb, mongo or memory" default:"duckdb"`
	MongoURI        string `doc:"MongoDB connection URI" default:"mongodb://localhost:27017"`
	MongoDB         string `doc:"MongoDB database name" default:"smokesearch"`
	RedisAddr       string `doc:"Redis address for sessions; empty keeps them in memory"`
	RedisPassword   string `doc:"Redis password"`
	BaseURL         string `doc:"Public origin used for canonical links and the sitemap"`
	AnalyticsID     string `doc:"Analytics measurement id; empty disables analytics"`
	DefaultLocale   string `doc:"Locale used when negotiation fails" default:"ja"`
	TileURL         string `doc:"Raster tile URL template for the map"`
	RecentLogin     string `doc:"Max session age for account deletion" default:"5m"`
	FederatedHeader string `doc:"Trusted proxy header carrying the federated email; empty disables federated sign-in"`
	SecureCookies   bool   `doc:"Mark cookies Secure"`
}

func (o *Options) config() server.Config {
	recent, err := time.ParseDuration(o.RecentLogin)
	if err != nil {
		log.Fatal().Err(err).Str("recent-login", o.RecentLogin).Msg("invalid duration")
	}
	return server.Config{
		Host:                 o.Host,
		Port:                 fmt.Sprintf("%d", o.Port),
		DataDir:              o.DataDir,
		WebDir:               o.WebDir,
		Env:                  o.Env,
		Store:                o.Store,
		MongoURI:             o.MongoURI,
		MongoDB:              o.MongoDB,
		RedisAddr:            o.RedisAddr,
		RedisPassword:        o.RedisPassword,
		BaseURL:              o.BaseURL,
		AnalyticsID:          o.AnalyticsID,
		DefaultLocale:        o.DefaultLocale,
		TileURL:              o.TileURL,
		RecentLogin:          recent,
		FederatedEmailHeader: o.FederatedHeader,
		SecureCookies:        o.SecureCookies,
	}
}

func newServer(ctx context.Context, opts *Options) *server.Server {
	srv, err := server.New(ctx, opts.config())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
	return srv
}

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		hooks.OnStart(func() {
			observability.InitLogger("smokesearch", opts.Env)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := newServer(ctx, opts)
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			httpServer := &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("smokesearch server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Store:   %s\n", opts.Store)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				httpServer.Shutdown(shutdownCtx)
			}()

			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("server error")
			}
		})
	})

	cli.Root().Use = "smoking"
	cli.Root().Short = "Smoking area search: find and register smoking areas on a map"
	cli.Root().Version = api.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			o := *opts
			o.Store = server.StoreMemory
			o.RedisAddr = ""
			srv := newServer(cmd.Context(), &o)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// export subcommand: dump every smoking area as GeoJSON or a PMTiles archive
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export all smoking areas as GeoJSON (default) or a PMTiles archive",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(cmd.Context(), opts)
			defer srv.Close()

			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("output")

			var data bytes.Buffer
			switch format {
			case "geojson":
				enc := json.NewEncoder(&data)
				enc.SetIndent("", "  ")
				if err := enc.Encode(srv.Areas().FeatureCollection(cmd.Context())); err != nil {
					fmt.Fprintf(os.Stderr, "Error marshaling areas: %v\n", err)
					os.Exit(1)
				}
			case "pmtiles":
				if out == "" || out == "-" {
					fmt.Fprintln(os.Stderr, "Error: --output is required for pmtiles")
					os.Exit(1)
				}
				minZoom, _ := cmd.Flags().GetInt("min-zoom")
				maxZoom, _ := cmd.Flags().GetInt("max-zoom")
				info, err := tiles.WriteArchive(&data, srv.Areas().List(cmd.Context()), minZoom, maxZoom)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error building archive: %v\n", err)
					os.Exit(1)
				}
				fmt.Printf("Archive: %d areas in %d tiles, zoom %d-%d\n", info.Areas, info.Tiles, info.MinZoom, info.MaxZoom)
			default:
				fmt.Fprintf(os.Stderr, "Error: unknown format %q (geojson or pmtiles)\n", format)
				os.Exit(1)
			}

			if out == "" || out == "-" {
				os.Stdout.Write(data.Bytes())
				return
			}
			if err := os.WriteFile(out, data.Bytes(), 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", out, err)
				os.Exit(1)
			}
			fmt.Printf("Areas exported to %s\n", out)
		}),
	}
	exportCmd.Flags().StringP("output", "o", "", "Output file (stdout when empty)")
	exportCmd.Flags().StringP("format", "f", "geojson", "Output format: geojson or pmtiles")
	exportCmd.Flags().Int("min-zoom", tiles.DefaultArchiveMinZoom, "Shallowest zoom of a pmtiles archive")
	exportCmd.Flags().Int("max-zoom", tiles.DefaultArchiveMaxZoom, "Deepest zoom of a pmtiles archive")
	cli.Root().AddCommand(exportCmd)

	cli.Run()
}
