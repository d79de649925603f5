// Package serve contains the REST entrypoint for the billable service.
package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	// pprof imports
	_ "net/http/pprof"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	chiware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/billable/billable/appctx"
	"github.com/billable/billable/catalog"
	"github.com/billable/billable/cmd"
	"github.com/billable/billable/customers"
	"github.com/billable/billable/events"
	"github.com/billable/billable/handlers"
	"github.com/billable/billable/identity"
	"github.com/billable/billable/ledger"
	"github.com/billable/billable/logging"
	"github.com/billable/billable/middleware"
	"github.com/billable/billable/orders"
	"github.com/billable/billable/referral"
)

// ServeCmd is the serve command for the billable REST service
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the billable REST service",
	Run:   cmd.Perform("serve", RunBillableServer),
}

func init() {
	cmd.RootCmd.AddCommand(ServeCmd)

	flagBuilder := cmd.NewFlagBuilder(ServeCmd)

	flagBuilder.String("address", ":8080",
		"the address to bind the server to").
		Bind("address").Env("ADDR")

	flagBuilder.String("database-url", "",
		"the database connection url").
		Bind("database-url").Env("DATABASE_URL")

	flagBuilder.Bool("enable-migration", false,
		"apply database migrations on startup").
		Bind("enable-migration").Env("ENABLE_MIGRATION")

	flagBuilder.String("api-token", "",
		"comma separated list of accepted bearer tokens").
		Bind("api-token").Env("API_TOKEN")

	flagBuilder.String("api-title", "Billable API",
		"the title published in the api docs").
		Bind("api-title").Env("API_TITLE")

	flagBuilder.Bool("show-docs", false,
		"publish the openapi document under /docs").
		Bind("show-docs").Env("SHOW_DOCS")

	flagBuilder.Duration("expiration-sweep-interval", 1*time.Minute,
		"how often the expiration sweeper marks overdue batches").
		Bind("expiration-sweep-interval").Env("EXPIRATION_SWEEP_INTERVAL")

	flagBuilder.String("sentry-dsn", "",
		"the sentry dsn for error reporting").
		Bind("sentry-dsn").Env("SENTRY_DSN")
}

func setupRouter(ctx context.Context) (context.Context, *chi.Mux) {
	logger, err := appctx.GetLogger(ctx)
	if err != nil {
		// no logger on context, make a new one
		ctx, logger = logging.SetupLogger(ctx)
	}

	r := chi.NewRouter()
	r.Use(
		chiware.RequestID,
		chiware.RealIP,
		chiware.Heartbeat("/"),
		chiware.Timeout(15*time.Second),
		middleware.BearerToken,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	if logger != nil {
		// also handles panic recovery
		r.Use(
			hlog.NewHandler(*logger),
			hlog.UserAgentHandler("user_agent"),
			hlog.RequestIDHandler("req_id", "Request-Id"),
			middleware.RequestLogger(logger),
		)
	}

	version, _ := appctx.GetStringFromContext(ctx, appctx.VersionCTXKey)
	commit, _ := appctx.GetStringFromContext(ctx, appctx.CommitCTXKey)
	buildTime, _ := appctx.GetStringFromContext(ctx, appctx.BuildTimeCTXKey)

	// we will always have metrics and health-check
	r.Get("/metrics", middleware.Metrics())
	r.Get("/health-check", handlers.HealthCheckHandler(version, buildTime, commit))
	return ctx, r
}

// RunBillableServer is the runner for the serve command
func RunBillableServer(command *cobra.Command, args []string) error {
	ctx := command.Context()
	logger, err := appctx.GetLogger(ctx)
	if err != nil {
		ctx, logger = logging.SetupLogger(ctx)
	}

	// add profiling flag to enable profiling routes
	if viper.GetString("pprof-enabled") != "" {
		// pprof attaches routes to default serve mux
		go func() {
			logger.Error().Err(http.ListenAndServe(":6061", http.DefaultServeMux))
		}()
	}

	if dsn := viper.GetString("sentry-dsn"); dsn != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: viper.GetString("environment"),
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to initialize sentry")
		}
	}

	apiToken := viper.GetString("api-token")
	if apiToken == "" {
		logger.Fatal().Msg("api-token is required")
	}
	middleware.TokenList = strings.Split(apiToken, ",")

	databaseURL := viper.GetString("database-url")
	enableMigration := viper.GetBool("enable-migration")

	// every datastore shares one connection pool; migration runs once
	catalogDB, err := catalog.NewPostgres(databaseURL, enableMigration, "catalog_datastore")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize catalog datastore")
	}
	identityDB, err := identity.NewPostgres(databaseURL, false, "identity_datastore")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize identity datastore")
	}
	ledgerDB, err := ledger.NewPostgres(databaseURL, false, "ledger_datastore")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize ledger datastore")
	}
	ordersDB, err := orders.NewPostgres(databaseURL, false, "orders_datastore")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize orders datastore")
	}
	referralDB, err := referral.NewPostgres(databaseURL, false, "referral_datastore")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize referral datastore")
	}
	customersDB, err := customers.NewPostgres(databaseURL, false, "customers_datastore")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize customers datastore")
	}

	bus := events.NewBus()

	catalogService, err := catalog.InitService(ctx, catalogDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize catalog service")
	}
	identityService, err := identity.InitService(ctx, identityDB, referralDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize identity service")
	}
	ledgerService, err := ledger.InitService(ctx, ledgerDB, catalogService, identityService, bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize ledger service")
	}
	ordersService, err := orders.InitService(ctx, ordersDB, catalogService, identityService, bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize orders service")
	}
	referralService, err := referral.InitService(ctx, referralDB, catalogService, identityService, bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize referral service")
	}
	customersService, err := customers.InitService(ctx, customersDB, bus)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize customers service")
	}

	ctx, r := setupRouter(ctx)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SimpleTokenAuthorizedOnly)

		r.Mount("/identify", identity.Router(identityService))
		r.Mount("/products", catalog.ProductsRouter(catalogService))
		r.Mount("/catalog", catalog.OffersRouter(catalogService))

		r.Method("GET", "/balance", middleware.InstrumentHandler(
			"GetBalance", ledger.GetBalance(ledgerService)))
		r.Method("GET", "/user-products", middleware.InstrumentHandler(
			"GetUserProducts", ledger.GetUserProducts(ledgerService)))
		r.Mount("/wallet", ledger.WalletRouter(ledgerService))
		r.Method("POST", "/exchange", middleware.InstrumentHandler(
			"Exchange", ledger.PostExchange(ledgerService)))

		r.Mount("/orders", orders.Router(ordersService))
		r.Mount("/referrals", referral.Router(referralService))
		r.Method("POST", "/demo/trial-grant", middleware.InstrumentHandler(
			"TrialGrant", referral.TrialGrant(referralService)))

		r.Mount("/customers", customers.Router(customersService))
	})

	if viper.GetBool("show-docs") {
		r.Get("/docs", docsHandler(viper.GetString("api-title")))
	}

	// the expiration sweeper keeps reads and storage in agreement
	go ledgerService.RunExpirationJob(ctx, viper.GetDuration("expiration-sweep-interval"))

	logger.Info().
		Str("address", viper.GetString("address")).
		Str("environment", viper.GetString("environment")).
		Msg("server starting")

	srv := http.Server{
		Addr:         viper.GetString("address"),
		Handler:      chi.ServerBaseContext(ctx, r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	// make sure exceptions go to sentry
	defer sentry.Flush(time.Second * 2)

	if err = srv.ListenAndServe(); err != nil {
		sentry.CaptureException(err)
		logger.Fatal().Err(err).Msg("HTTP server start failed!")
	}
	return nil
}
