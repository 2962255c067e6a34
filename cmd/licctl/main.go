package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaevor/go-nanoid"
	"github.com/spf13/cobra"

	"serwer-licencji/internal/config"
	"serwer-licencji/internal/database"
	"serwer-licencji/internal/licclient"
	"serwer-licencji/internal/license"
	"serwer-licencji/internal/models"
)

var (
	serverAddr string
	softwareID string
	userID     int64

	allocDays    int
	allocationID string
	checkinSess  string
	sessionHold  bool
)

var rootCmd = &cobra.Command{
	Use:           "licctl",
	Short:         "Operator tool for the floating-license server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Show seat usage for a software",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		resp, err := client.Query()
		if err != nil {
			return err
		}
		if resp.Status != license.StatusSuccess {
			return fmt.Errorf("query failed: %s", resp.Message)
		}
		fmt.Printf("%s %s: %d/%d seats in use, %d available\n",
			resp.SoftwareName, resp.Version, resp.ActiveSessions, resp.TotalLicenses, resp.AvailableLicenses)
		return nil
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Check out a seat; with --hold, keep it until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		resp, err := client.Checkout()
		if err != nil {
			return err
		}
		if resp.Status != license.StatusSuccess {
			return fmt.Errorf("checkout denied: %s", resp.Message)
		}
		fmt.Printf("Session: %s\n", resp.SessionID)
		if resp.Expiry != "" {
			fmt.Printf("Allocation expires: %s\n", resp.Expiry)
		}

		if !sessionHold {
			return nil
		}

		fmt.Println("Holding license, press Ctrl-C to check in...")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		if _, err := client.Checkin(); err != nil {
			return err
		}
		return nil
	},
}

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Check in a session by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Checkin of a foreign session goes straight over the wire since
		// the client library only releases leases it holds itself.
		resp, err := licclient.SendRaw(serverAddr, license.Request{
			Command:   license.CommandCheckin,
			SessionID: checkinSess,
		})
		if err != nil {
			return err
		}
		if resp.Status != license.StatusSuccess {
			return fmt.Errorf("checkin failed: %s", resp.Message)
		}
		fmt.Println("Checked in.")
		return nil
	},
}

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Register a license allocation for a user (writes to the database)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		software, err := store.GetSoftwareByID(context.Background(), softwareID)
		if err != nil {
			return err
		}
		if software == nil {
			return fmt.Errorf("unknown software: %s", softwareID)
		}

		generateID, err := nanoid.Standard(21)
		if err != nil {
			return fmt.Errorf("failed to initialize nanoid generator: %w", err)
		}

		var expiry *time.Time
		if allocDays > 0 {
			e := time.Now().AddDate(0, 0, allocDays)
			expiry = &e
		}

		alloc, err := store.CreateAllocation(context.Background(), database.CreateAllocationParams{
			AllocationID: generateID(),
			SoftwareID:   softwareID,
			UserID:       userID,
			ExpiryDate:   expiry,
		})
		if err != nil {
			return err
		}

		detail := fmt.Sprintf("allocation_id=%s", alloc.AllocationID)
		if err := store.InsertAuditEvent(context.Background(), database.AuditEventParams{
			SoftwareID: &alloc.SoftwareID,
			UserID:     &alloc.UserID,
			Action:     models.AuditAllocate,
			Detail:     &detail,
		}); err != nil {
			log.Printf("Failed to write audit event: %v", err)
		}

		fmt.Printf("Allocation %s created for user %d on %s\n", alloc.AllocationID, alloc.UserID, alloc.SoftwareID)
		if alloc.ExpiryDate != nil {
			fmt.Printf("Expires: %s\n", alloc.ExpiryDate.Format(time.RFC3339))
		}
		return nil
	},
}

var deallocateCmd = &cobra.Command{
	Use:   "deallocate",
	Short: "Deactivate an allocation so it no longer authorizes checkouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		deactivated, err := store.DeactivateAllocation(context.Background(), allocationID)
		if err != nil {
			return err
		}
		if !deactivated {
			return fmt.Errorf("allocation %s not found or already inactive", allocationID)
		}

		fmt.Printf("Allocation %s deactivated\n", allocationID)
		return nil
	},
}

var allocationsCmd = &cobra.Command{
	Use:   "allocations",
	Short: "List allocations for a software",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, cleanup, err := openStore()
		if err != nil {
			return err
		}
		defer cleanup()

		allocations, err := store.ListAllocationsForSoftware(context.Background(), softwareID)
		if err != nil {
			return err
		}

		for _, alloc := range allocations {
			expiry := "never"
			if alloc.ExpiryDate != nil {
				expiry = alloc.ExpiryDate.Format(time.RFC3339)
			}
			fmt.Printf("%s  user=%d  active=%t  expires=%s\n",
				alloc.AllocationID, alloc.UserID, alloc.IsActive, expiry)
		}
		return nil
	},
}

func newClient() *licclient.Client {
	cfg, err := config.Load()
	if err == nil {
		if serverAddr == "" {
			serverAddr = cfg.Client.ServerAddr
		}
		return licclient.New(serverAddr, softwareID, userID,
			licclient.WithHeartbeatInterval(cfg.Client.HeartbeatInterval),
			licclient.WithRequestTimeout(cfg.Client.RequestTimeout),
		)
	}
	return licclient.New(serverAddr, softwareID, userID)
}

func openStore() (*database.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot load configuration: %w", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DB.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to the database: %w", err)
	}

	return database.NewStore(pool), pool.Close, nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "license server address (host:port)")
	rootCmd.PersistentFlags().StringVar(&softwareID, "software", "", "software id")
	rootCmd.PersistentFlags().Int64Var(&userID, "user", 0, "user id")

	checkoutCmd.Flags().BoolVar(&sessionHold, "hold", false, "keep the seat with a renewal loop until interrupted")
	checkinCmd.Flags().StringVar(&checkinSess, "session", "", "session id to check in")
	checkinCmd.MarkFlagRequired("session")
	allocateCmd.Flags().IntVar(&allocDays, "days", 0, "allocation validity in days (0 = no expiry)")
	deallocateCmd.Flags().StringVar(&allocationID, "allocation", "", "allocation id to deactivate")
	deallocateCmd.MarkFlagRequired("allocation")

	rootCmd.AddCommand(queryCmd, checkoutCmd, checkinCmd, allocateCmd, deallocateCmd, allocationsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
