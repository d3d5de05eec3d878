// cmd/permitctl/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/civilaviation/fop-backend/internal/config"
	"github.com/civilaviation/fop-backend/internal/database"
	"github.com/civilaviation/fop-backend/internal/services"
	"github.com/civilaviation/fop-backend/internal/utils"
)

// env is what every database-backed command needs.
type env struct {
	cfg *config.Config
	db  *gorm.DB
}

func (e *env) close() {
	database.Close(e.db)
}

func setup(cmd *cobra.Command) (*env, error) {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &env{cfg: cfg, db: db}, nil
}

func tenantFlag(cmd *cobra.Command) (string, error) {
	tenant, _ := cmd.Flags().GetString("tenant")
	if strings.TrimSpace(tenant) == "" {
		return "", errors.New("--tenant is required")
	}
	return tenant, nil
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return d, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed the shared tariff",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if err := database.RunMigrations(e.db); err != nil {
				return err
			}
			if skip, _ := cmd.Flags().GetBool("skip-seed"); skip {
				fmt.Println("Migrations applied.")
				return nil
			}
			if err := database.SeedInitialData(e.db, e.cfg.Fees.PrimaryAirports); err != nil {
				return err
			}
			fmt.Println("Migrations applied and tariff seeded.")
			return nil
		},
	}
	cmd.Flags().Bool("skip-seed", false, "do not seed the default tariff")
	return cmd
}

func QuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote permit and tariff fees",
	}
	cmd.AddCommand(quotePermitCmd(), quoteTariffCmd())
	return cmd
}

func quotePermitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permit",
		Short: "Quote a permit fee",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			permitType, _ := cmd.Flags().GetString("type")
			seats, _ := cmd.Flags().GetInt("seats")
			mtow, err := decimalFlag(cmd, "mtow-kg")
			if err != nil {
				return err
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			quote, err := services.NewFeeService(e.db, e.cfg).QuotePermit(cmd.Context(), tenant, &services.PermitQuoteRequest{
				PermitType:         permitType,
				SeatCount:          seats,
				MaxTakeoffWeightKg: mtow,
			})
			if err != nil {
				return err
			}
			return printJSON(quote)
		},
	}
	cmd.Flags().String("type", "one_time", "permit type: one_time, blanket or emergency")
	cmd.Flags().Int("seats", 0, "seat count")
	cmd.Flags().String("mtow-kg", "", "maximum takeoff weight in kg")
	return cmd
}

func quoteTariffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tariff",
		Short: "Quote airport charges for one operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			req := &services.TariffQuoteRequest{}
			req.OperationType, _ = cmd.Flags().GetString("operation")
			req.Airport, _ = cmd.Flags().GetString("airport")
			req.PassengerCount, _ = cmd.Flags().GetInt("passengers")
			req.Departing, _ = cmd.Flags().GetBool("departing")
			req.Interisland, _ = cmd.Flags().GetBool("interisland")
			req.FlightPlanFiling, _ = cmd.Flags().GetBool("flight-plan")
			req.CatViFireUpgrade, _ = cmd.Flags().GetBool("cat-vi")

			at, _ := cmd.Flags().GetString("time")
			if at == "" {
				req.OperationTime = time.Now().UTC()
			} else if req.OperationTime, err = time.Parse(time.RFC3339, at); err != nil {
				return fmt.Errorf("invalid --time: %w", err)
			}

			for name, dst := range map[string]*decimal.Decimal{
				"mtow-lb":        &req.MaxTakeoffWeightLb,
				"parking-hours":  &req.ParkingHours,
				"lighting-hours": &req.LightingHours,
				"fuel-gallons":   &req.FuelGallons,
			} {
				if *dst, err = decimalFlag(cmd, name); err != nil {
					return err
				}
			}
			if err := utils.ValidateStruct(req); err != nil {
				return err
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			quote, err := services.NewFeeService(e.db, e.cfg).QuoteTariff(cmd.Context(), tenant, req)
			if err != nil {
				return err
			}
			return printJSON(quote)
		},
	}
	cmd.Flags().String("operation", "general_aviation", "operation type")
	cmd.Flags().String("airport", "", "ICAO airport code")
	cmd.Flags().String("mtow-lb", "", "maximum takeoff weight in lb")
	cmd.Flags().Int("passengers", 0, "passenger count")
	cmd.Flags().Bool("departing", false, "operation is a departure")
	cmd.Flags().Bool("interisland", false, "interisland flight")
	cmd.Flags().String("time", "", "operation time, RFC 3339 (default now)")
	cmd.Flags().String("parking-hours", "", "parking hours")
	cmd.Flags().String("lighting-hours", "", "lighting hours")
	cmd.Flags().String("fuel-gallons", "", "fuel uplift in gallons")
	cmd.Flags().Bool("flight-plan", false, "include flight plan filing")
	cmd.Flags().Bool("cat-vi", false, "include CAT VI fire upgrade")
	return cmd
}

func RatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rates",
		Short: "List the tariff rates in force for a tenant, shared rates included",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			table, err := services.NewFeeService(e.db, e.cfg).RateTable(cmd.Context(), tenant)
			if err != nil {
				return err
			}
			return printJSON(table.Rates())
		},
	}
}

func InterestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interest",
		Short: "Compute late payment interest",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			principal, err := decimalFlag(cmd, "principal")
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			currency, _ := cmd.Flags().GetString("currency")

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			interest, err := services.NewFeeService(e.db, e.cfg).QuoteInterest(cmd.Context(), tenant, &services.InterestQuoteRequest{
				Principal:   principal,
				Currency:    currency,
				DaysOverdue: days,
			}, time.Now().UTC())
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"interest":     interest,
				"days_overdue": days,
			})
		},
	}
	cmd.Flags().String("principal", "0", "overdue amount")
	cmd.Flags().Int("days", 0, "days overdue")
	cmd.Flags().String("currency", "", "ISO currency (default USD)")
	return cmd
}

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed identity token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := tenantFlag(cmd)
			if err != nil {
				return err
			}
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return errors.New("--subject is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			utils.SetJWTSecret(cfg.JWT.SecretKey)
			utils.SetJWTIssuer(cfg.JWT.Issuer)

			token, err := utils.GenerateJWT(subject, tenant, role, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "actor id placed in the token subject")
	cmd.Flags().String("role", "operator", "operator, officer, finance, director or admin")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func OutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Dispatch undelivered domain events once",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			limit, _ := cmd.Flags().GetInt("limit")
			handled, err := services.NewNotificationService(e.db, e.cfg).DispatchPending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Printf("Dispatched %d event(s).\n", handled)
			return nil
		},
	}
	cmd.Flags().Int("limit", 100, "maximum events to dispatch")
	return cmd
}

func ExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-documents",
		Short: "Mark expired documents and warn about upcoming expiries",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			storage, err := services.NewStorageService(e.cfg)
			if err != nil {
				return err
			}
			notifications := services.NewNotificationService(e.db, e.cfg)
			applications := services.NewApplicationService(e.db, services.NewFeeService(e.db, e.cfg), storage, nil, notifications)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			expired, err := applications.ExpireDocuments(ctx)
			if err != nil {
				return err
			}
			warned, err := applications.WarnExpiringDocuments(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Expired %d document(s), warned about %d.\n", expired, warned)
			return nil
		},
	}
}
