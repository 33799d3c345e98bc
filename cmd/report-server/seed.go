package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ehr/clinicreport/internal/config"
	"github.com/ehr/clinicreport/internal/domain/consultation"
	"github.com/ehr/clinicreport/internal/platform/db"
	"github.com/ehr/clinicreport/internal/platform/sandbox"
)

func seedCmd() *cobra.Command {
	def := sandbox.DefaultSeedConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load synthetic patients and consultations into a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			seedCfg := sandbox.SeedConfig{}
			seedCfg.Patients, _ = cmd.Flags().GetInt("patients")
			seedCfg.ConsultationsPerPatient, _ = cmd.Flags().GetInt("consultations")
			seedCfg.SegmentsPerConsultation, _ = cmd.Flags().GetInt("segments")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")

			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
				if tenant == "" {
					tenant = cfg.DefaultTenant
				}
				conn, err := pool.Acquire(ctx)
				if err != nil {
					return err
				}
				defer conn.Release()

				ctx, err = db.UseTenant(ctx, conn, tenant)
				if err != nil {
					return err
				}
				svc := consultation.NewService(consultation.NewRepo(pool))
				result, err := sandbox.NewSeeder(svc, seedCfg).Generate(ctx)
				if err != nil {
					return fmt.Errorf("seed failed: %w", err)
				}
				fmt.Printf("Seeded %s: %d patient(s), %d consultation(s), %d segment(s) in %s\n",
					db.TenantSchema(tenant), result.Patients, result.Consultations, result.Segments, result.Duration)
				return nil
			})
		},
	}
	cmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	cmd.Flags().Int("patients", def.Patients, "Number of patients")
	cmd.Flags().Int("consultations", def.ConsultationsPerPatient, "Consultations per patient")
	cmd.Flags().Int("segments", def.SegmentsPerConsultation, "Transcript segments per consultation")
	cmd.Flags().Int64("seed", 0, "Random seed (0 picks one from the clock)")
	return cmd
}
