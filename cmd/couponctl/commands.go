package main

import (
	"context"
	"fmt"
	"os"
	"time"

	config "github.com/anjiri1684/tuition_coupons/configs"
	"github.com/anjiri1684/tuition_coupons/database"
	"github.com/anjiri1684/tuition_coupons/logger"
	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type env struct {
	settings config.Settings
	log      *zap.Logger
	db       *gorm.DB
	audit    *services.AuditService
	coupons  *services.CouponService
}

func connect() (*env, error) {
	settings := config.Load()
	log, err := logger.New(settings.IsDevelopment())
	if err != nil {
		return nil, err
	}
	db, err := database.ConnectDB(settings.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	audit := services.NewAuditService(db, log)
	return &env{
		settings: settings,
		log:      log,
		db:       db,
		audit:    audit,
		coupons:  services.NewCouponService(db, log, audit, services.CouponOptions{Validity: settings.CouponValidity}),
	}, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			if err := database.Migrate(e.db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the staff account, status labels and gateways",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			if err := database.SeedStaff(e.db, e.settings, e.log); err != nil {
				return err
			}
			return database.SeedCatalog(e.db, e.log)
		},
	}
}

func sweepOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark coupons and installments past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			result, err := e.coupons.SweepOverdue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "coupons: %d, installments: %d\n", result.Coupons, result.Installments)
			return nil
		},
	}
}

func purgeIdempotencyCmd() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "purge-idempotency",
		Short: "Delete idempotency records older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("retention") {
				retention = e.settings.IdempotencyRetention
			}
			purged, err := e.coupons.PurgeIdempotency(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d records\n", purged)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 24*time.Hour, "keep records newer than this")
	return cmd
}

func importInstallmentsCmd() *cobra.Command {
	var staffEmail string
	cmd := &cobra.Command{
		Use:   "import-installments [csv-file]",
		Short: "Register installments from a CSV export of the billing system",
		Long: `Register installments from a CSV file with the header
student_id,period,amount,due_date

due_date uses the YYYY-MM-DD format. Rows are grouped per student and each
group is registered in its own transaction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect()
			if err != nil {
				return err
			}
			if staffEmail == "" {
				staffEmail = e.settings.StaffEmail
			}
			actor, err := staffPrincipal(cmd.Context(), e.db, staffEmail)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			batches, err := parseInstallmentCSV(f)
			if err != nil {
				return err
			}

			installments := services.NewInstallmentService(e.db, e.log, e.audit)
			total := 0
			for _, batch := range batches {
				created, err := installments.Register(cmd.Context(), actor, batch.StudentID, batch.Inputs)
				if err != nil {
					return fmt.Errorf("student %s: %w", batch.StudentID, err)
				}
				total += len(created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %d installments for %d students\n", total, len(batches))
			return nil
		},
	}
	cmd.Flags().StringVar(&staffEmail, "staff-email", "", "staff account recorded as the importer (defaults to STAFF_EMAIL)")
	return cmd
}

func staffPrincipal(ctx context.Context, db *gorm.DB, email string) (services.Principal, error) {
	var staff models.User
	err := db.WithContext(ctx).Where("email = ? AND role = ?", email, models.RoleStaff).First(&staff).Error
	if err != nil {
		return services.Principal{}, fmt.Errorf("staff account %q: %w", email, err)
	}
	return services.Principal{UserID: staff.ID, Role: staff.Role}, nil
}
